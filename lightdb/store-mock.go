package lightdb

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/devtele/lightdb/coap"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

var ErrMockClosed = errors.New("mock store closed")

// ResponseHook may modify resp before it is sent.
// Return false to suppress default response, e.g. to deliver it later with Inject.
type ResponseHook func(req, resp *coap.Message) bool

type mockRecord struct {
	payload []byte
	format  coap.MediaType
}

// MockStore is in-memory LightDB speaking CoAP, implements Channel.
// State keeps last written value per path, Stream appends.
// State read of "a/b" descends into JSON object stored at "a".
type MockStore struct {
	Log *log2.Log

	mu       sync.Mutex
	state    map[string]mockRecord
	stream   map[string][]mockRecord
	requests []coap.Message
	hook     ResponseHook
	silent   bool
	sendErr  error
	lastID   uint16

	out       chan []byte
	failed    chan struct{}
	failErr   error
	failOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Channel = &MockStore{}

func NewMockStore(log *log2.Log) *MockStore {
	return &MockStore{
		Log:    log,
		state:  make(map[string]mockRecord),
		stream: make(map[string][]mockRecord),
		out:    make(chan []byte, 64),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
		lastID: 0x8000,
	}
}

func (ms *MockStore) Send(ctx context.Context, b []byte) error {
	select {
	case <-ms.closed:
		return ErrMockClosed
	case <-ms.failed:
		return ms.failErr
	default:
	}
	ms.mu.Lock()
	if err := ms.sendErr; err != nil {
		ms.mu.Unlock()
		return err
	}
	var req coap.Message
	if err := coap.Unmarshal(b, &req); err != nil {
		ms.mu.Unlock()
		ms.Log.Errorf("mock store: drop malformed request err=%v", err)
		return nil
	}
	ms.requests = append(ms.requests, req)
	resp := ms.handle(&req)
	hook, silent := ms.hook, ms.silent
	ms.mu.Unlock()

	ms.Log.Debugf("mock store: req=%s resp=%v", req.String(), resp)
	if resp == nil || silent {
		return nil
	}
	if hook != nil && !hook(&req, resp) {
		return nil
	}
	ms.InjectMessage(resp)
	return nil
}

func (ms *MockStore) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-ms.out:
		return b, nil
	case <-ms.failed:
		return nil, ms.failErr
	case <-ms.closed:
		return nil, ErrMockClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ms *MockStore) Close() error {
	ms.closeOnce.Do(func() { close(ms.closed) })
	return nil
}

// Inject queues raw datagram for Receive, dropped if queue is full.
func (ms *MockStore) Inject(b []byte) {
	select {
	case ms.out <- b:
	default:
		ms.Log.Errorf("mock store: out queue full, drop len=%d", len(b))
	}
}

func (ms *MockStore) InjectMessage(m *coap.Message) {
	b, err := coap.Marshal(m, 0)
	if err != nil {
		ms.Log.Errorf("mock store: encode %s err=%v", m.String(), err)
		return
	}
	ms.Inject(b)
}

// Fail makes Send and Receive return err from now on.
func (ms *MockStore) Fail(err error) {
	ms.failOnce.Do(func() {
		ms.failErr = err
		close(ms.failed)
	})
}

func (ms *MockStore) SetHook(h ResponseHook) {
	ms.mu.Lock()
	ms.hook = h
	ms.mu.Unlock()
}

// SetSilent stores writes but never responds.
func (ms *MockStore) SetSilent(silent bool) {
	ms.mu.Lock()
	ms.silent = silent
	ms.mu.Unlock()
}

func (ms *MockStore) SetSendError(err error) {
	ms.mu.Lock()
	ms.sendErr = err
	ms.mu.Unlock()
}

// Put stores record as if written by device.
func (ms *MockStore) Put(kind StoreKind, path string, payload []byte, format coap.MediaType) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.put(kind, path, mockRecord{payload: payload, format: format})
}

// Get returns latest record at path.
func (ms *MockStore) Get(kind StoreKind, path string) ([]byte, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	r, ok := ms.get(kind, path)
	return r.payload, ok
}

func (ms *MockStore) StreamLen(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.stream[path])
}

// Requests returns copy of every decoded datagram received from client.
func (ms *MockStore) Requests() []coap.Message {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]coap.Message(nil), ms.requests...)
}

func (ms *MockStore) handle(req *coap.Message) *coap.Message {
	if req.Type == coap.Acknowledgement || req.Type == coap.Reset || req.Code == coap.Empty {
		return nil
	}
	resp := &coap.Message{Token: req.Token}
	if req.Type == coap.Confirmable {
		resp.Type = coap.Acknowledgement
		resp.MessageID = req.MessageID
	} else {
		resp.Type = coap.NonConfirmable
		ms.lastID++
		resp.MessageID = ms.lastID
	}

	full := req.Path()
	var kind StoreKind
	switch {
	case strings.HasPrefix(full, statePrefix):
		kind = State
	case strings.HasPrefix(full, streamPrefix):
		kind = Stream
	default:
		resp.Code = coap.NotFound
		return resp
	}
	path := full[len(kind.Prefix()):]

	switch req.Code {
	case coap.GET:
		r, ok := ms.get(kind, path)
		if !ok {
			resp.Code = coap.NotFound
			return resp
		}
		resp.Code = coap.Content
		resp.SetContentFormat(r.format)
		resp.Payload = r.payload
	case coap.POST, coap.PUT:
		format := coap.AppJSON
		if cf, ok := req.ContentFormat(); ok {
			format = cf
		}
		ms.put(kind, path, mockRecord{payload: req.Payload, format: format})
		resp.Code = coap.Changed
	case coap.DELETE:
		delete(ms.state, path)
		delete(ms.stream, path)
		resp.Code = coap.Deleted
	default:
		resp.Code = coap.MethodNotAllowed
	}
	return resp
}

func (ms *MockStore) put(kind StoreKind, path string, r mockRecord) {
	switch kind {
	case State:
		ms.state[path] = r
	case Stream:
		ms.stream[path] = append(ms.stream[path], r)
	}
}

func (ms *MockStore) get(kind StoreKind, path string) (mockRecord, bool) {
	if kind == Stream {
		rs := ms.stream[path]
		if len(rs) == 0 {
			return mockRecord{}, false
		}
		return rs[len(rs)-1], true
	}
	if r, ok := ms.state[path]; ok {
		return r, true
	}
	// longest stored JSON parent
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i > 0; i-- {
		parent, ok := ms.state[strings.Join(parts[:i], "/")]
		if !ok || parent.format != coap.AppJSON {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(parent.payload, &v); err != nil {
			return mockRecord{}, false
		}
		for _, key := range parts[i:] {
			obj, ok := v.(map[string]interface{})
			if !ok {
				return mockRecord{}, false
			}
			if v, ok = obj[key]; !ok {
				return mockRecord{}, false
			}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return mockRecord{}, false
		}
		return mockRecord{payload: b, format: coap.AppJSON}, true
	}
	return mockRecord{}, false
}
