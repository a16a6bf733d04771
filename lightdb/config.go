package lightdb

import (
	lightdb_config "github.com/devtele/lightdb/lightdb/config"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

func OptionsFromConfig(c *lightdb_config.Config, log *log2.Log) (ClientOptions, error) {
	if c.LogDebug {
		log = log.Clone(log2.LDebug)
	}
	opt := ClientOptions{
		Log:             log,
		ResponseTimeout: c.ResponseTimeout(),
		MaxMessageSize:  c.MaxMessageSize,
	}
	f, err := FormatByName(c.ContentFormat)
	if err != nil {
		return opt, errors.Annotate(err, "lightdb config")
	}
	opt.Format = f
	if c.CryptoToken {
		opt.Tokens = NewCryptoTokenSource()
	}
	return opt, nil
}
