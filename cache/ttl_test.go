package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTL_GetPutClear(t *testing.T) {
	c := NewTTL[int, string](10, time.Minute)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Put(1, "one")
	c.Put(2, "two")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	c.Put(1, "uno")
	v, _ = c.Get(1)
	assert.Equal(t, "uno", v)

	c.Clear()
	_, ok = c.Get(2)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTTL_Expiry(t *testing.T) {
	c := NewTTL[string, int](10, 20*time.Millisecond)
	c.Put("rev", 3)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("rev")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestTTL_SizeBound(t *testing.T) {
	c := NewTTL[int, int](2, time.Minute)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)

	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}
