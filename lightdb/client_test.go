package lightdb_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devtele/lightdb/coap"
	"github.com/devtele/lightdb/lightdb"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tempSensor struct {
	Temp float64 `json:"temp"`
	Meta struct {
		Battery int `json:"battery"`
		Signal  int `json:"signal"`
	} `json:"meta"`
}

type led struct {
	Blue    bool `json:"blue"`
	Desired bool `json:"desired"`
}

func newTestClient(t testing.TB, opt lightdb.ClientOptions) (*lightdb.Client, *lightdb.MockStore) {
	log := log2.NewTest(t, log2.LDebug)
	store := lightdb.NewMockStore(log)
	opt.Log = log
	c := lightdb.NewClient(store, opt)
	t.Cleanup(func() { _ = c.Close() })
	return c, store
}

func assertKind(t testing.TB, kind error, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, errors.Cause(err), err.Error())
	assert.True(t, stderrors.Is(err, kind), "errors.Is kind=%v err=%v", kind, err)
	assert.Equal(t, kind, lightdb.Kind(err))
}

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()
	for _, format := range []lightdb.Format{lightdb.JSON, lightdb.CBOR} {
		format := format
		t.Run(format.MediaType().String(), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			c, store := newTestClient(t, lightdb.ClientOptions{Format: format})

			var rec tempSensor
			rec.Temp = 67.3
			rec.Meta.Battery = 3700
			rec.Meta.Signal = -71
			require.NoError(t, c.Write(ctx, lightdb.State, "x", rec))
			stored, ok := store.Get(lightdb.State, "x")
			require.True(t, ok)
			require.NotEmpty(t, stored)

			var got tempSensor
			require.NoError(t, c.Read(ctx, lightdb.State, "x", &got))
			assert.Equal(t, rec, got)

			reqs := store.Requests()
			require.Len(t, reqs, 2)
			assert.Equal(t, coap.NonConfirmable, reqs[0].Type)
			assert.Equal(t, coap.POST, reqs[0].Code)
			assert.Empty(t, reqs[0].Token)
			assert.Equal(t, ".d/x", reqs[0].Path())
			cf, _ := reqs[0].ContentFormat()
			assert.Equal(t, format.MediaType(), cf)
			assert.Equal(t, coap.Confirmable, reqs[1].Type)
			assert.Equal(t, coap.GET, reqs[1].Code)
			assert.Len(t, reqs[1].Token, lightdb.TokenSize)
		})
	}
}

func TestClientStream(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Write(ctx, lightdb.Stream, "sensor", map[string]int{"temp": i}))
	}
	assert.Equal(t, 3, store.StreamLen("sensor"))
	_, ok := store.Get(lightdb.State, "sensor")
	assert.False(t, ok)
	for _, r := range store.Requests() {
		assert.Equal(t, ".s/sensor", r.Path())
	}
	var last map[string]int
	require.NoError(t, c.Read(ctx, lightdb.Stream, "sensor", &last))
	assert.Equal(t, map[string]int{"temp": 3}, last)
}

func TestClientSubPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestClient(t, lightdb.ClientOptions{})
	require.NoError(t, c.Write(ctx, lightdb.State, "led", led{Blue: false, Desired: true}))

	var desired bool
	require.NoError(t, c.Read(ctx, lightdb.State, "led/desired", &desired))
	assert.True(t, desired)

	raw, err := c.ReadRaw(ctx, lightdb.State, "led")
	require.NoError(t, err)
	assert.JSONEq(t, `{"blue":false,"desired":true}`, string(raw))
}

func TestClientCorrelation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	store.Put(lightdb.State, "x", []byte(`"right"`), coap.AppJSON)
	store.SetHook(func(req, resp *coap.Message) bool {
		stray := *resp
		stray.Token = coap.Token{0xde, 0xad}
		stray.Payload = []byte(`"wrong"`)
		store.InjectMessage(&stray)
		return true
	})

	var s string
	require.NoError(t, c.Read(ctx, lightdb.State, "x", &s))
	assert.Equal(t, "right", s)
	assert.Equal(t, int64(1), c.Stat().Unmatched.Value())
	assert.Equal(t, int64(1), c.Stat().Matched.Value())
}

func TestClientMalformed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	store.Put(lightdb.State, "x", []byte(`42`), coap.AppJSON)
	store.SetHook(func(req, resp *coap.Message) bool {
		store.Inject([]byte{0x68, 0x45, 0x12}) // truncated header
		store.Inject([]byte{0x48, 0x45, 0x00, 0x01, 0x01})
		return true
	})

	var v int
	require.NoError(t, c.Read(ctx, lightdb.State, "x", &v))
	assert.Equal(t, 42, v)
	assert.Equal(t, int64(2), c.Stat().Malformed.Value())
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const timeout = 50 * time.Millisecond
	c, store := newTestClient(t, lightdb.ClientOptions{ResponseTimeout: timeout})
	store.Put(lightdb.State, "x", []byte(`1`), coap.AppJSON)
	store.SetSilent(true)

	var v int
	tbegin := time.Now()
	err := c.Read(ctx, lightdb.State, "x", &v)
	elapsed := time.Since(tbegin)
	assertKind(t, lightdb.ErrResponseTimeout, err)
	assert.GreaterOrEqual(t, int64(elapsed), int64(timeout))
	assert.Less(t, int64(elapsed), int64(timeout+200*time.Millisecond))
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, int64(1), c.Stat().Timeouts.Value())

	// client is reusable after timeout
	store.SetSilent(false)
	require.NoError(t, c.Read(ctx, lightdb.State, "x", &v))
	assert.Equal(t, 1, v)
}

func TestClientCallerDeadline(t *testing.T) {
	t.Parallel()
	c, store := newTestClient(t, lightdb.ClientOptions{ResponseTimeout: 10 * time.Second})
	store.SetSilent(true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var v int
	tbegin := time.Now()
	err := c.Read(ctx, lightdb.State, "x", &v)
	assertKind(t, lightdb.ErrResponseTimeout, err)
	assert.Less(t, int64(time.Since(tbegin)), int64(time.Second))
	assert.Equal(t, 0, c.Pending())
}

func TestClientCancel(t *testing.T) {
	t.Parallel()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	store.SetSilent(true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for c.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	_, err := c.ReadRaw(ctx, lightdb.State, "x")
	require.Error(t, err)
	assert.Equal(t, context.Canceled, errors.Cause(err))
	assert.Nil(t, lightdb.Kind(err))
	assert.Equal(t, 0, c.Pending())
}

func TestClientConcurrentReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	const n = 20
	for i := 0; i < n; i++ {
		store.Put(lightdb.State, fmt.Sprintf("r%d", i), []byte(fmt.Sprint(i)), coap.AppJSON)
	}
	// deliver responses out of order
	store.SetHook(func(req, resp *coap.Message) bool {
		delay := time.Duration(rand.Intn(20)) * time.Millisecond
		go func() {
			time.Sleep(delay)
			store.InjectMessage(resp)
		}()
		return false
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	got := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Read(ctx, lightdb.State, fmt.Sprintf("r%d", i), &got[i])
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, i, got[i])
	}
	assert.Equal(t, int64(n), c.Stat().Matched.Value())
	assert.Equal(t, 0, c.Pending())
}

func TestClientTransportFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{ResponseTimeout: 10 * time.Second})
	store.SetSilent(true)

	go func() {
		for c.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		store.Fail(fmt.Errorf("link down"))
	}()
	tbegin := time.Now()
	_, err := c.ReadRaw(ctx, lightdb.State, "x")
	assertKind(t, lightdb.ErrTransport, err)
	assert.Contains(t, err.Error(), "link down")
	assert.Less(t, int64(time.Since(tbegin)), int64(time.Second))

	// sticky
	err = c.Write(ctx, lightdb.State, "x", 1)
	assertKind(t, lightdb.ErrTransport, err)
	_, err = c.ReadRaw(ctx, lightdb.State, "x")
	assertKind(t, lightdb.ErrTransport, err)
}

func TestClientSendError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	store.SetSendError(fmt.Errorf("send rejected"))

	err := c.Write(ctx, lightdb.State, "x", 1)
	assertKind(t, lightdb.ErrTransport, err)
	assert.Contains(t, err.Error(), "send rejected")
	_, err = c.ReadRaw(ctx, lightdb.State, "x")
	assertKind(t, lightdb.ErrTransport, err)
	assert.Equal(t, 0, c.Pending())

	store.SetSendError(nil)
	assert.NoError(t, c.Write(ctx, lightdb.State, "x", 1))
}

func TestClientEncoding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{MaxMessageSize: 64})

	err := c.Write(ctx, lightdb.Stream, "x", strings.Repeat("big", 30))
	assertKind(t, lightdb.ErrEncoding, err)
	assert.Contains(t, err.Error(), "message is too large")

	err = c.Write(ctx, lightdb.State, "x", make(chan int))
	assertKind(t, lightdb.ErrEncoding, err)

	_, err = c.ReadRaw(ctx, lightdb.State, strings.Repeat("long/", 20))
	assertKind(t, lightdb.ErrEncoding, err)
	assert.Equal(t, 0, c.Pending())
	assert.Empty(t, store.Requests())
}

func TestClientDeserialization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	store.Put(lightdb.State, "x", []byte(`"text"`), coap.AppJSON)

	var rec tempSensor
	err := c.Read(ctx, lightdb.State, "x", &rec)
	assertKind(t, lightdb.ErrDeserialization, err)
}

func TestClientResponseFormat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{Format: lightdb.JSON})
	b, err := lightdb.CBOR.Marshal(led{Blue: true})
	require.NoError(t, err)
	store.Put(lightdb.State, "led", b, coap.AppCBOR)

	var got led
	require.NoError(t, c.Read(ctx, lightdb.State, "led", &got))
	assert.Equal(t, led{Blue: true}, got)
}

func TestClientStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestClient(t, lightdb.ClientOptions{})

	var v int
	err := c.Read(ctx, lightdb.State, "missing", &v)
	assertKind(t, lightdb.ErrStatus, err)
	assert.Contains(t, err.Error(), "code=4.04")
}

func TestClientSeparateResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestClient(t, lightdb.ClientOptions{})
	store.Put(lightdb.State, "x", []byte(`true`), coap.AppJSON)
	const responseID = 0x7777
	store.SetHook(func(req, resp *coap.Message) bool {
		if req.Code != coap.GET {
			return true
		}
		store.InjectMessage(&coap.Message{Type: coap.Acknowledgement, MessageID: req.MessageID})
		resp.Type = coap.Confirmable
		resp.MessageID = responseID
		return true
	})

	var v bool
	require.NoError(t, c.Read(ctx, lightdb.State, "x", &v))
	assert.True(t, v)

	reqs := store.Requests()
	require.Len(t, reqs, 2)
	ack := reqs[1]
	assert.Equal(t, coap.Acknowledgement, ack.Type)
	assert.Equal(t, coap.Empty, ack.Code)
	assert.Equal(t, uint16(responseID), ack.MessageID)
	assert.Empty(t, ack.Token)
}

func TestClientTokenCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tokA := coap.Token{1, 1, 1, 1, 1, 1, 1, 1}
	tokB := coap.Token{2, 2, 2, 2, 2, 2, 2, 2}
	tokens := &seqTokens{list: []coap.Token{tokA, tokA, tokB}}
	c, store := newTestClient(t, lightdb.ClientOptions{Tokens: tokens, ResponseTimeout: 300 * time.Millisecond})
	store.Put(lightdb.State, "x", []byte(`1`), coap.AppJSON)
	store.SetHook(func(req, resp *coap.Message) bool { return !req.Token.Equal(tokA) })

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ReadRaw(ctx, lightdb.State, "x")
		firstErr <- err
	}()
	for c.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}

	var v int
	require.NoError(t, c.Read(ctx, lightdb.State, "x", &v))
	assert.Equal(t, 1, v)
	assertKind(t, lightdb.ErrResponseTimeout, <-firstErr)
}

func TestClientClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := log2.NewTest(t, log2.LDebug)
	store := lightdb.NewMockStore(log)
	store.SetSilent(true)
	c := lightdb.NewClient(store, lightdb.ClientOptions{Log: log})

	readErr := make(chan error, 1)
	go func() {
		_, err := c.ReadRaw(ctx, lightdb.State, "x")
		readErr <- err
	}()
	for c.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, c.Close())
	err := <-readErr
	assertKind(t, lightdb.ErrTransport, err)
	assert.Contains(t, err.Error(), lightdb.ErrClosing.Error())
	assertKind(t, lightdb.ErrTransport, c.Write(ctx, lightdb.State, "x", 1))
}

type seqTokens struct {
	mu   sync.Mutex
	list []coap.Token
}

func (s *seqTokens) NextToken() coap.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.list[0]
	if len(s.list) > 1 {
		s.list = s.list[1:]
	}
	return t
}
