package lightdbnet

import (
	"net"
	"net/url"

	"github.com/juju/errors"
)

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// parseURI adds default CoAP port when missing.
func parseURI(s string) (scheme, hostport string, err error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", errors.NotValidf("empty host")
	}
	hostport = u.Host
	if u.Port() == "" {
		port := DefaultPort
		if u.Scheme == "coaps" {
			port = DefaultSecurePort
		}
		hostport = net.JoinHostPort(u.Hostname(), port)
	}
	return u.Scheme, hostport, nil
}
