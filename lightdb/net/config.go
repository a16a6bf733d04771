package lightdbnet

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"

	lightdb_config "github.com/devtele/lightdb/lightdb/config"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

func OptionsFromConfig(c *lightdb_config.Config, log *log2.Log) (ConnOptions, error) {
	opt := ConnOptions{
		Log:                log,
		NetworkTimeout:     c.NetworkTimeout(),
		PskId:              c.PskId,
		ServerName:         c.TlsServerName,
		InsecureSkipVerify: c.TlsInsecure,
	}
	if c.MaxMessageSize > DefaultReadLimit {
		opt.ReadLimit = c.MaxMessageSize
	}
	var err error
	if opt.Psk, err = c.PskBytes(); err != nil {
		return opt, err
	}
	if c.TlsCaFile != "" {
		pem, err := ioutil.ReadFile(c.TlsCaFile)
		if err != nil {
			return opt, errors.Annotate(err, "tls_ca_file")
		}
		opt.RootCAs = x509.NewCertPool()
		if !opt.RootCAs.AppendCertsFromPEM(pem) {
			return opt, errors.NotValidf("tls_ca_file=%s no certificates", c.TlsCaFile)
		}
	}
	if c.TlsCertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TlsCertFile, c.TlsKeyFile)
		if err != nil {
			return opt, errors.Annotate(err, "tls_cert_file")
		}
		opt.Certificates = []tls.Certificate{cert}
	}
	return opt, nil
}

// DialConfig validates config and connects to server_url.
func DialConfig(ctx context.Context, c *lightdb_config.Config, log *log2.Log) (*Conn, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Annotate(err, "lightdb config")
	}
	opt, err := OptionsFromConfig(c, log)
	if err != nil {
		return nil, errors.Annotate(err, "lightdb config")
	}
	return DialContext(ctx, c.URL(), opt)
}
