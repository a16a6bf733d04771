package lightdb

import (
	"context"
	"testing"

	"github.com/devtele/lightdb/coap"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		start  uint32
		expect []uint16
	}{
		{"zero", 0, []uint16{0, 1, 2, 3, 4, 5}},
		{"wrap", 0xfffd, []uint16{0xfffd, 0xfffe, 0xffff, 0, 1, 2}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			log := log2.NewTest(t, log2.LDebug)
			store := NewMockStore(log)
			store.Put(State, "x", []byte(`1`), coap.AppJSON)
			client := NewClient(store, ClientOptions{Log: log})
			defer client.Close()
			client.lastID = c.start

			for i := range c.expect {
				if i%2 == 0 {
					require.NoError(t, client.Write(ctx, State, "x", i))
				} else {
					_, err := client.ReadRaw(ctx, State, "x")
					require.NoError(t, err)
				}
			}
			reqs := store.Requests()
			require.Len(t, reqs, len(c.expect))
			for i, r := range reqs {
				assert.Equal(t, c.expect[i], r.MessageID, "op=%d", i)
			}
		})
	}
}

func TestWriteNoPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := log2.NewTest(t, log2.LDebug)
	store := NewMockStore(log)
	store.SetSilent(true)
	client := NewClient(store, ClientOptions{Log: log})
	defer client.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, client.Write(ctx, Stream, "s", i))
		assert.Equal(t, 0, client.corr.Len())
	}
	assert.Equal(t, int64(10), client.Stat().Send.Count.Value())
}

func TestCorrelatorRegister(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	store := NewMockStore(log)
	corr := NewCorrelator(store, log, nil, nil)
	defer corr.Close()

	tok := coap.Token{1, 2, 3}
	p, err := corr.Register(tok)
	require.NoError(t, err)
	_, err = corr.Register(tok)
	assert.Equal(t, ErrTokenInUse, errors.Cause(err))
	assert.Equal(t, 1, corr.Len())

	p.Cancel()
	p.Cancel()
	assert.Equal(t, 0, corr.Len())
	p2, err := corr.Register(tok)
	require.NoError(t, err)

	// stale Cancel must not release new waiter with same token
	p.Cancel()
	assert.Equal(t, 1, corr.Len())

	store.InjectMessage(&coap.Message{Type: coap.NonConfirmable, Code: coap.Content, Token: tok, Payload: []byte("ok")})
	m, err := p2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(m.Payload))
	assert.Equal(t, 0, corr.Len())
}
