package lightdb

import (
	"context"
	"sync"

	"github.com/devtele/lightdb/coap"
	"github.com/devtele/lightdb/helpers"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

// Correlator owns Channel.Receive and routes each response
// to the waiter registered with the same token.
// Any number of waiters may be pending at once.
// Malformed and unmatched datagrams are counted and dropped.
// Receive failure is sticky: all pending and future waiters fail with ErrTransport.
type Correlator struct {
	alive         *alive.Alive
	ch            Channel
	log           *log2.Log
	stat          *Stat
	onConfirmable func(*coap.Message)

	mu      sync.Mutex
	pending map[string]*Pending
	err     helpers.AtomicError
}

// Pending is one registered waiter.
type Pending struct {
	c     *Correlator
	token coap.Token
	f     *helpers.Future
}

// NewCorrelator starts dispatcher goroutine, stop it with Close.
// onConfirmable is called from dispatcher for every received Confirmable message.
func NewCorrelator(ch Channel, log *log2.Log, stat *Stat, onConfirmable func(*coap.Message)) *Correlator {
	if stat == nil {
		stat = new(Stat)
	}
	c := &Correlator{
		alive:         alive.NewAlive(),
		ch:            ch,
		log:           log,
		stat:          stat,
		onConfirmable: onConfirmable,
		pending:       make(map[string]*Pending),
	}
	c.alive.Add(1)
	go c.run()
	return c
}

// Register must be called before request is sent, so fast response is not lost.
func (c *Correlator) Register(token coap.Token) (*Pending, error) {
	key := string(token)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.err.Load(); ok {
		return nil, err
	}
	if _, ok := c.pending[key]; ok {
		return nil, errors.Annotatef(ErrTokenInUse, "token=%s", token)
	}
	p := &Pending{c: c, token: token, f: helpers.NewFuture()}
	c.pending[key] = p
	return p, nil
}

// Err returns sticky failure or nil.
func (c *Correlator) Err() error {
	err, _ := c.err.Load()
	return err
}

// Len returns number of pending waiters.
func (c *Correlator) Len() int {
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	return n
}

// Close stops dispatcher, closes channel and fails pending waiters.
func (c *Correlator) Close() error {
	c.alive.Stop()
	err := c.ch.Close()
	c.alive.Wait()
	c.fail(WithKind(ErrTransport, ErrClosing))
	return errors.Annotate(err, "channel close")
}

func (p *Pending) Token() coap.Token { return p.token }

// Wait returns matched response or ctx.Err() or sticky transport error.
// Pending is released in any case.
func (p *Pending) Wait(ctx context.Context) (*coap.Message, error) {
	defer p.Cancel()
	v, err := p.f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v.(*coap.Message), nil
}

// Cancel releases pending waiter, safe to call many times.
func (p *Pending) Cancel() {
	c := p.c
	key := string(p.token)
	c.mu.Lock()
	if c.pending[key] == p {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	p.f.Cancel(context.Canceled)
}

func (c *Correlator) run() {
	defer c.alive.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	for c.alive.IsRunning() {
		b, err := c.ch.Receive(ctx)
		if err != nil {
			if !c.alive.IsRunning() {
				return
			}
			err = WithKind(ErrTransport, errors.Annotate(err, "receive"))
			c.log.Errorf("lightdb: %v", err)
			c.fail(err)
			return
		}
		c.dispatch(b)
	}
}

func (c *Correlator) dispatch(b []byte) {
	c.stat.Recv.Register(len(b))
	var m coap.Message
	if err := coap.Unmarshal(b, &m); err != nil {
		c.stat.Malformed.Add(1)
		c.log.Debugf("lightdb: drop malformed datagram len=%d err=%v", len(b), err)
		return
	}
	c.log.Debugf("lightdb: recv %s", m.String())
	if m.Type == coap.Confirmable && c.onConfirmable != nil {
		c.onConfirmable(&m)
	}
	if m.Code == coap.Empty {
		// empty ACK, separate response follows
		return
	}

	key := string(m.Token)
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok || len(m.Token) == 0 {
		c.stat.Unmatched.Add(1)
		c.log.Debugf("lightdb: drop unmatched %s", m.String())
		return
	}
	if p.f.Complete(&m) {
		c.stat.Matched.Add(1)
	}
}

func (c *Correlator) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err.StoreOnce(err)
	err, _ = c.err.Load()
	for key, p := range c.pending {
		delete(c.pending, key)
		p.f.Cancel(err)
	}
}
