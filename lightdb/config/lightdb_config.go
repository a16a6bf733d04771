// Separate package is workaround to import cycles.
package lightdb_config

import (
	"net/url"
	"time"

	"github.com/devtele/lightdb/helpers"
	"github.com/juju/errors"
)

const DefaultServerURL = "coaps://coap.golioth.dev:5684"

type Config struct { //nolint:maligned
	ServerURL         string `hcl:"server_url"`
	PskId             string `hcl:"psk_id"`
	Psk               string `hcl:"psk"`     // secret
	PskHex            string `hcl:"psk_hex"` // secret, takes precedence over psk
	TlsCaFile         string `hcl:"tls_ca_file"`
	TlsCertFile       string `hcl:"tls_cert_file"`
	TlsKeyFile        string `hcl:"tls_key_file"`
	TlsServerName     string `hcl:"tls_server_name"`
	TlsInsecure       bool   `hcl:"tls_insecure"`
	ResponseTimeoutMs int    `hcl:"response_timeout_ms"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	MaxMessageSize    int    `hcl:"max_message_size"`
	ContentFormat     string `hcl:"content_format"`
	CryptoToken       bool   `hcl:"crypto_token"`
	LogDebug          bool   `hcl:"log_debug"`
}

func (c *Config) URL() string {
	if c.ServerURL == "" {
		return DefaultServerURL
	}
	return c.ServerURL
}

// ResponseTimeout zero means client default.
func (c *Config) ResponseTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.ResponseTimeoutMs, 0)
}

func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.NetworkTimeoutSec, 30*time.Second)
}

// PskBytes returns pre-shared key, psk_hex accepts "0a1b", "0a:1b" and "0a 1b".
func (c *Config) PskBytes() ([]byte, error) {
	if c.PskHex != "" {
		b, err := helpers.ParseHex(c.PskHex)
		return b, errors.Annotate(err, "psk_hex")
	}
	if c.Psk == "" {
		return nil, nil
	}
	return []byte(c.Psk), nil
}

// Validate reports all problems at once.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	u, err := url.Parse(c.URL())
	if err != nil {
		errs = append(errs, errors.Annotate(err, "server_url"))
	} else {
		switch u.Scheme {
		case "coap":
		case "coaps":
			psk, err := c.PskBytes()
			if err != nil {
				errs = append(errs, err)
			}
			hasPsk := len(psk) != 0 || c.PskId != ""
			if hasPsk && (len(psk) == 0 || c.PskId == "") {
				errs = append(errs, errors.Errorf("psk and psk_id must be set together"))
			}
			if !hasPsk && c.TlsCaFile == "" && !c.TlsInsecure {
				errs = append(errs, errors.Errorf("coaps requires psk or tls_ca_file"))
			}
			if (c.TlsCertFile == "") != (c.TlsKeyFile == "") {
				errs = append(errs, errors.Errorf("tls_cert_file and tls_key_file must be set together"))
			}
		default:
			errs = append(errs, errors.NotSupportedf("server_url scheme=%q", u.Scheme))
		}
	}
	if c.ResponseTimeoutMs < 0 {
		errs = append(errs, errors.NotValidf("response_timeout_ms=%d", c.ResponseTimeoutMs))
	}
	if c.MaxMessageSize < 0 || (c.MaxMessageSize > 0 && c.MaxMessageSize < 64) {
		errs = append(errs, errors.NotValidf("max_message_size=%d", c.MaxMessageSize))
	}
	switch c.ContentFormat {
	case "", "json", "cbor":
	default:
		errs = append(errs, errors.NotSupportedf("content_format=%q", c.ContentFormat))
	}
	return helpers.FoldErrors(errs)
}
