// Package device is the application side of LightDB client:
// connection lifecycle, caller side retries and example workloads.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/devtele/lightdb/helpers"
	"github.com/devtele/lightdb/lightdb"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

type DialFunc func(ctx context.Context) (lightdb.Channel, error)

type RetryOptions struct {
	Min      time.Duration
	Max      time.Duration
	Attempts int
}

// Session redials after transport failure and retries failed operations
// with exponential backoff. Client itself never retries.
type Session struct {
	dial     DialFunc
	opt      lightdb.ClientOptions
	log      *log2.Log
	backoff  helpers.Backoff
	attempts int
	stat     lightdb.Stat

	mu     sync.Mutex
	client *lightdb.Client
	dials  int
}

func NewSession(dial DialFunc, opt lightdb.ClientOptions, retry RetryOptions) *Session {
	s := &Session{
		dial:     dial,
		opt:      opt,
		log:      opt.Log,
		attempts: retry.Attempts,
		backoff: helpers.Backoff{
			Min: retry.Min,
			Max: retry.Max,
			K:   2,
		},
	}
	if s.attempts <= 0 {
		s.attempts = 1
	}
	if s.opt.Stat == nil {
		s.opt.Stat = &s.stat
	}
	return s
}

// Stat is shared by all clients of this session.
func (s *Session) Stat() *lightdb.Stat { return s.opt.Stat }

func (s *Session) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Client returns connected client, dials if needed.
func (s *Session) Client(ctx context.Context) (*lightdb.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	s.dials++
	ch, err := s.dial(ctx)
	if err != nil {
		return nil, lightdb.WithKind(lightdb.ErrTransport, errors.Annotate(err, "dial"))
	}
	s.client = lightdb.NewClient(ch, s.opt)
	return s.client, nil
}

// Do runs op until success, non-retryable error or attempts exhausted.
// ResponseTimeout and Transport errors are retried, the latter with new connection.
func (s *Session) Do(ctx context.Context, name string, op func(context.Context, *lightdb.Client) error) error {
	var err error
	for i := 1; i <= s.attempts; i++ {
		if i > 1 {
			if err = helpers.SleepContext(ctx, s.backoff.DelayBefore()); err != nil {
				return errors.Annotate(err, name)
			}
		}
		var c *lightdb.Client
		if c, err = s.Client(ctx); err == nil {
			err = op(ctx, c)
		}
		s.backoff.Update(err == nil)
		if err == nil {
			return nil
		}

		kind := lightdb.Kind(err)
		if kind == lightdb.ErrTransport {
			s.reset(c)
		}
		if kind != lightdb.ErrTransport && kind != lightdb.ErrResponseTimeout {
			return errors.Annotate(err, name)
		}
		s.log.Errorf("%s attempt=%d/%d err=%v", name, i, s.attempts, err)
	}
	return errors.Annotatef(err, "%s attempts=%d", name, s.attempts)
}

func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

func (s *Session) reset(c *lightdb.Client) {
	s.mu.Lock()
	if c == nil || s.client != c {
		s.mu.Unlock()
		return
	}
	s.client = nil
	s.mu.Unlock()
	if err := c.Close(); err != nil {
		s.log.Debugf("session close broken client err=%v", err)
	}
}
