package console

import (
	"bytes"
	"context"
	"testing"

	"github.com/devtele/lightdb/internal/device"
	"github.com/devtele/lightdb/lightdb"
	"github.com/devtele/lightdb/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		line   string
		expect string
	}{
		{"get", "usage: get KIND PATH"},
		{"get state", "usage: get KIND PATH"},
		{"get state a b", "usage: get KIND PATH"},
		{"get table x", `store kind="table" not valid`},
		{"set led", "usage: set PATH JSON"},
		{"push data {", "push value: unexpected end of JSON input"},
		{"reboot", "invalid command: 'reboot'"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.line, func(t *testing.T) {
			f, err := parseLine(c.line)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expect)
		})
	}

	f, err := parseLine("   ")
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestCutWord(t *testing.T) {
	t.Parallel()
	w, rest := cutWord("  set  led {\"blue\": true} ")
	assert.Equal(t, "set", w)
	assert.Equal(t, "led {\"blue\": true}", rest)
	w, rest = cutWord("stat")
	assert.Equal(t, "stat", w)
	assert.Equal(t, "", rest)
}

func TestExecutor(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	log := log2.NewWriter(buf, log2.LInfo)
	log.SetFlags(0)
	ctx := context.WithValue(context.Background(), log2.ContextKey, log)
	store := lightdb.NewMockStore(log2.NewTest(t, log2.LDebug))
	s := device.NewSession(
		func(context.Context) (lightdb.Channel, error) { return store, nil },
		lightdb.ClientOptions{Log: log2.NewTest(t, log2.LDebug)},
		device.RetryOptions{Attempts: 1})
	defer s.Close()

	exec := newExecutor(ctx, s)
	exec(`set led {"blue": true, "desired": false}`)
	exec(`push data 67.5`)
	exec(`push data 68`)
	exec(`get state led/blue`)
	exec(`get s data`)
	exec(`get state missing`)

	out := buf.String()
	assert.Contains(t, out, "< true\n")
	assert.Contains(t, out, "< 68\n")
	assert.Contains(t, out, "4.04")
	assert.Equal(t, 2, store.StreamLen("data"))

	buf.Reset()
	exec("stat")
	assert.Contains(t, buf.String(), "dials=1")
	exec("log=yes")
	assert.True(t, log.Enabled(log2.LDebug))
}
