package lightdbnet

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/devtele/lightdb/helpers"
	"github.com/devtele/lightdb/helpers/atomic_clock"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
	"github.com/pion/dtls/v3"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultReadLimit      = 2048

	DefaultPort       = "5683"
	DefaultSecurePort = "5684"
)

var ErrClosing = fmt.Errorf("closing")

// aLongTimeAgo unblocks pending Read
var aLongTimeAgo = time.Unix(1, 0)

type ConnOptions struct {
	Log            *log2.Log
	NetworkTimeout time.Duration
	ReadLimit      int

	// coaps credentials, PSK takes precedence over certificates
	PskId              string
	Psk                []byte
	RootCAs            *x509.CertPool
	Certificates       []tls.Certificate
	ServerName         string
	InsecureSkipVerify bool
}

// Conn is one connected datagram socket, plain UDP or DTLS.
// Send may be called concurrently, Receive only from one goroutine.
type Conn struct {
	conn     net.Conn
	url      string
	log      *log2.Log
	opt      ConnOptions
	buf      []byte
	lastRecv atomic_clock.Clock
	dieErr   helpers.AtomicError
}

func DialContext(ctx context.Context, url string, opt ConnOptions) (*Conn, error) {
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opt.NetworkTimeout)
	defer cancel()

	scheme, hostport, err := parseURI(url)
	if err != nil {
		return nil, errors.Annotatef(err, "url=%s", url)
	}

	var conn net.Conn
	switch scheme {
	case "coap":
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "udp", hostport)

	case "coaps":
		conn, err = dialDTLS(ctx, hostport, &opt)

	default:
		err = errors.NotSupportedf("protocol=%s", scheme)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "dial %s", url)
	}
	opt.Log.Debugf("lightdb: connected %s local=%s remote=%s", url, addrString(conn.LocalAddr()), addrString(conn.RemoteAddr()))
	return NewConn(conn, url, opt), nil
}

func dialDTLS(ctx context.Context, hostport string, opt *ConnOptions) (net.Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, err
	}
	config := &dtls.Config{
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	}
	if len(opt.Psk) != 0 {
		psk := opt.Psk
		config.PSK = func([]byte) ([]byte, error) { return psk, nil }
		config.PSKIdentityHint = []byte(opt.PskId)
		config.CipherSuites = []dtls.CipherSuiteID{
			dtls.TLS_PSK_WITH_AES_128_CCM_8,
			dtls.TLS_PSK_WITH_AES_128_GCM_SHA256,
		}
	} else {
		config.RootCAs = opt.RootCAs
		config.Certificates = opt.Certificates
		config.InsecureSkipVerify = opt.InsecureSkipVerify
		config.ServerName = opt.ServerName
		if config.ServerName == "" {
			config.ServerName, _, _ = net.SplitHostPort(hostport)
		}
	}

	conn, err := dtls.Dial("udp", raddr, config)
	if err != nil {
		return nil, err
	}
	if err = conn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Annotate(err, "handshake")
	}
	return conn, nil
}

// NewConn wraps connected socket. Useful in tests with net.Pipe.
func NewConn(conn net.Conn, url string, opt ConnOptions) *Conn {
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReadLimit == 0 {
		opt.ReadLimit = DefaultReadLimit
	}
	c := &Conn{
		conn: conn,
		url:  url,
		log:  opt.Log,
		opt:  opt,
		buf:  make([]byte, opt.ReadLimit),
	}
	c.lastRecv.SetNow()
	return c
}

func (c *Conn) Close() error {
	if _, dead := c.dieErr.StoreOnce(ErrClosing); dead {
		return nil
	}
	return c.conn.Close()
}

func (c *Conn) Closed() bool {
	_, dead := c.dieErr.Load()
	return dead
}

func (c *Conn) Send(ctx context.Context, b []byte) error {
	if err, dead := c.dieErr.Load(); dead {
		return err
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx, time.Now().Add(c.opt.NetworkTimeout))); err != nil {
		return errors.Annotate(err, "SetWriteDeadline")
	}
	n, err := c.conn.Write(b)
	if err != nil {
		return errors.Annotatef(err, "write %s", c.url)
	}
	if n != len(b) {
		return errors.Errorf("write %s short n=%d expected=%d", c.url, n, len(b))
	}
	return nil
}

// Receive returns one datagram. ctx done returns ctx.Err() and keeps conn usable.
// Other read error is sticky.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err, dead := c.dieErr.Load(); dead {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(c.deadline(ctx, time.Time{})); err != nil {
		return nil, errors.Annotate(err, "SetReadDeadline")
	}

	stopch, exitch := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(exitch)
		select {
		case <-ctx.Done():
			_ = c.conn.SetReadDeadline(aLongTimeAgo)
		case <-stopch:
		}
	}()
	n, err := c.conn.Read(c.buf)
	close(stopch)
	<-exitch

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err, dead := c.dieErr.Load(); dead {
			return nil, err
		}
		return nil, c.die(errors.Annotatef(err, "read %s", c.url))
	}
	c.lastRecv.SetNow()
	return append([]byte(nil), c.buf[:n]...), nil
}

func (c *Conn) RemoteAddr() net.Addr         { return c.conn.RemoteAddr() }
func (c *Conn) SinceLastRecv() time.Duration { return atomic_clock.Since(&c.lastRecv) }
func (c *Conn) String() string {
	return fmt.Sprintf("lightdbnet.Conn<%s remote=%s>", c.url, addrString(c.conn.RemoteAddr()))
}

func (c *Conn) deadline(ctx context.Context, def time.Time) time.Time {
	if d, ok := ctx.Deadline(); ok && (def.IsZero() || d.Before(def)) {
		return d
	}
	return def
}

func (c *Conn) die(e error) error {
	if err, dead := c.dieErr.StoreOnce(e); dead {
		return err
	}
	c.log.Errorf("lightdb: %s die %v", c.String(), e)
	_ = c.conn.Close()
	return e
}
