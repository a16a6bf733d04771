package subcmd

import (
	"context"
	"testing"

	"github.com/devtele/lightdb/internal/config"
	"github.com/devtele/lightdb/lightdb"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	mods := []Mod{{Name: "stream"}, {Name: "twin"}}

	m, err := Parse("twin", mods)
	require.NoError(t, err)
	assert.Equal(t, "twin", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("reboot", mods)
	assert.EqualError(t, err, "unknown command='reboot'")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}

func TestNewSessionMock(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ctx := context.WithValue(context.Background(), log2.ContextKey, log)
	c := &config.Config{}
	c.LightDB.ServerURL = "mock:"

	s, err := NewSession(ctx, c)
	require.NoError(t, err)
	defer s.Close()
	err = s.Do(ctx, "write", func(ctx context.Context, cl *lightdb.Client) error {
		return cl.Write(ctx, lightdb.State, "x", 42)
	})
	require.NoError(t, err)
	var v int
	err = s.Do(ctx, "read", func(ctx context.Context, cl *lightdb.Client) error {
		return cl.Read(ctx, lightdb.State, "x", &v)
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestNewSessionInvalid(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ctx := context.WithValue(context.Background(), log2.ContextKey, log)
	c := &config.Config{}
	c.LightDB.ServerURL = "http://example.com"
	_, err := NewSession(ctx, c)
	require.Error(t, err)
	assert.True(t, errors.IsNotSupported(errors.Cause(err)), errors.ErrorStack(err))

	c.LightDB.ServerURL = ""
	c.LightDB.ContentFormat = "xml"
	_, err = NewSession(ctx, c)
	assert.Error(t, err)
}
