package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetMissing(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.SetWithTTL("k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestOverwrite(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	c.Set("k", "old")
	c.Set("k", "new")

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, c.Len())
}
