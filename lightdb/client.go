package lightdb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devtele/lightdb/coap"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

const (
	DefaultResponseTimeout = 2 * time.Second
	DefaultMaxMessageSize  = 1024

	tokenAttempts = 8
)

type ClientOptions struct {
	Log    *log2.Log
	Format Format      // default JSON
	Tokens TokenSource // default ClockTokenSource
	// Read waits at most this long for response, caller ctx may shorten it.
	ResponseTimeout time.Duration
	MaxMessageSize  int
	// optional, e.g. to keep counters across reconnects
	Stat *Stat
}

// Client is safe for concurrent use, including concurrent Reads.
type Client struct {
	ch              Channel
	corr            *Correlator
	log             *log2.Log
	format          Format
	tokens          TokenSource
	responseTimeout time.Duration
	maxSize         int
	stat            *Stat

	lastID uint32
	sendMu sync.Mutex
}

// NewClient takes ownership of ch, Close client to release it.
func NewClient(ch Channel, opt ClientOptions) *Client {
	c := &Client{
		ch:              ch,
		log:             opt.Log,
		format:          opt.Format,
		tokens:          opt.Tokens,
		responseTimeout: opt.ResponseTimeout,
		maxSize:         opt.MaxMessageSize,
		stat:            opt.Stat,
	}
	if c.format == nil {
		c.format = JSON
	}
	if c.tokens == nil {
		c.tokens = NewClockTokenSource()
	}
	if c.responseTimeout <= 0 {
		c.responseTimeout = DefaultResponseTimeout
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxMessageSize
	}
	if c.stat == nil {
		c.stat = new(Stat)
	}
	c.corr = NewCorrelator(ch, c.log, c.stat, c.ack)
	return c
}

func (c *Client) Close() error   { return c.corr.Close() }
func (c *Client) Stat() *Stat    { return c.stat }
func (c *Client) Format() Format { return c.format }
func (c *Client) Pending() int   { return c.corr.Len() }
func (c *Client) nextMessageID() uint16 {
	return uint16(atomic.AddUint32(&c.lastID, 1) - 1)
}

// Write serializes v and sends NonConfirmable POST.
// Returns after datagram is sent, no acknowledgement is requested.
func (c *Client) Write(ctx context.Context, kind StoreKind, path string, v interface{}) error {
	payload, err := c.format.Marshal(v)
	if err != nil {
		return WithKind(ErrEncoding, errors.Annotatef(err, "write %s", FormatPath(kind, path)))
	}
	return c.WriteRaw(ctx, kind, path, payload)
}

// WriteRaw sends payload already serialized in client Format.
func (c *Client) WriteRaw(ctx context.Context, kind StoreKind, path string, payload []byte) error {
	m := coap.NewRequest(coap.NonConfirmable, coap.POST, FormatPath(kind, path))
	m.SetContentFormat(c.format.MediaType())
	m.Payload = payload
	return annotatef(c.send(ctx, m), "write")
}

// Read requests latest record and deserializes it into v.
// Response Content-Format selects decoder when known, else client Format.
func (c *Client) Read(ctx context.Context, kind StoreKind, path string, v interface{}) error {
	r, err := c.request(ctx, kind, path)
	if err != nil {
		return err
	}
	f := c.format
	if mt, ok := r.ContentFormat(); ok {
		if rf, ok := FormatByMediaType(mt); ok {
			f = rf
		}
	}
	if err := f.Unmarshal(r.Payload, v); err != nil {
		return WithKind(ErrDeserialization, errors.Annotatef(err, "read %s format=%s", FormatPath(kind, path), f.MediaType()))
	}
	return nil
}

// ReadRaw returns response payload as is.
func (c *Client) ReadRaw(ctx context.Context, kind StoreKind, path string) ([]byte, error) {
	r, err := c.request(ctx, kind, path)
	if err != nil {
		return nil, err
	}
	return r.Payload, nil
}

func (c *Client) request(ctx context.Context, kind StoreKind, path string) (*coap.Message, error) {
	full := FormatPath(kind, path)
	ctx, cancel := context.WithTimeout(ctx, c.responseTimeout)
	defer cancel()

	p, err := c.register()
	if err != nil {
		return nil, annotatef(err, "read %s", full)
	}
	defer p.Cancel()

	m := coap.NewRequest(coap.Confirmable, coap.GET, full)
	m.Token = p.Token()
	m.SetContentFormat(c.format.MediaType())
	if err = c.send(ctx, m); err != nil {
		return nil, annotatef(err, "read")
	}

	r, err := p.Wait(ctx)
	switch {
	case err == nil:
	case err == context.DeadlineExceeded:
		c.stat.Timeouts.Add(1)
		return nil, WithKind(ErrResponseTimeout, errors.Annotatef(err, "read %s token=%s", full, p.Token()))
	case err == context.Canceled:
		return nil, errors.Annotatef(err, "read %s token=%s", full, p.Token())
	default:
		return nil, annotatef(err, "read %s", full)
	}
	if !r.Code.IsSuccess() {
		return nil, WithKind(ErrStatus, errors.Errorf("read %s code=%s", full, r.Code))
	}
	return r, nil
}

// register draws fresh token, collision with pending read is retried.
func (c *Client) register() (*Pending, error) {
	for i := 1; ; i++ {
		p, err := c.corr.Register(c.tokens.NextToken())
		if err != nil && errors.Cause(err) == ErrTokenInUse && i < tokenAttempts {
			c.log.Debugf("lightdb: %v, retry", err)
			continue
		}
		return p, err
	}
}

// send assigns message id, encodes and sends m.
func (c *Client) send(ctx context.Context, m *coap.Message) error {
	if err := c.corr.Err(); err != nil {
		return err
	}
	m.MessageID = c.nextMessageID()
	b, err := coap.Marshal(m, c.maxSize)
	if err != nil {
		return WithKind(ErrEncoding, errors.Annotatef(err, "encode %s", m.Path()))
	}
	c.log.Debugf("lightdb: send %s", m.String())
	return c.sendRaw(ctx, b)
}

func (c *Client) sendRaw(ctx context.Context, b []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ch.Send(ctx, b); err != nil {
		return WithKind(ErrTransport, errors.Annotate(err, "send"))
	}
	c.stat.Send.Register(len(b))
	return nil
}

// ack confirms separate response, no retransmission on either side is tracked.
func (c *Client) ack(m *coap.Message) {
	a := &coap.Message{Type: coap.Acknowledgement, Code: coap.Empty, MessageID: m.MessageID}
	b, err := coap.Marshal(a, 0)
	if err != nil {
		panic("code error empty ACK encode: " + err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.responseTimeout)
	defer cancel()
	if err := c.sendRaw(ctx, b); err != nil {
		c.log.Errorf("lightdb: ack mid=%d err=%v", m.MessageID, err)
	}
}
