package cacheval

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInt32Valid(t *testing.T) {
	t.Parallel()

	rand := rand.New(rand.NewSource(time.Now().UnixNano()))
	const valid = 50 * time.Millisecond

	cv := Int32{}
	cv.Init(valid)

	assert.Equal(t, int32(0), cv.Get())
	v, ok := cv.GetFresh()
	assert.Equal(t, int32(0), v)
	assert.False(t, ok)

	expect := int32(rand.Uint32())
	cv.Set(expect)
	v, ok = cv.GetFresh()
	assert.Equal(t, expect, v)
	assert.True(t, ok)

	calls := 0
	read := func() (int32, error) { calls++; return expect + 1, nil }
	v, err := cv.GetOrUpdate(read)
	assert.NoError(t, err)
	assert.Equal(t, expect, v)
	assert.Equal(t, 0, calls)

	time.Sleep(valid + 10*time.Millisecond)
	v, err = cv.GetOrUpdate(read)
	assert.NoError(t, err)
	assert.Equal(t, expect+1, v)
	assert.Equal(t, 1, calls)
}

func TestInt32ReadError(t *testing.T) {
	t.Parallel()

	cv := Int32{}
	cv.Init(time.Millisecond)
	cv.Set(-70)
	time.Sleep(5 * time.Millisecond)
	v, err := cv.GetOrUpdate(func() (int32, error) { return 0, fmt.Errorf("modem busy") })
	assert.EqualError(t, err, "modem busy")
	assert.Equal(t, int32(-70), v)
	_, ok := cv.GetFresh()
	assert.False(t, ok)
}
