package ingestapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLStore_SaveGetDelete(t *testing.T) {
	s := NewTTLStore[string](time.Minute)
	defer s.Stop()

	s.Save("a", "one")
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	s.Delete("a")
	_, ok = s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestTTLStore_Expiry(t *testing.T) {
	s := NewTTLStore[int](time.Minute)
	defer s.Stop()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Save("a", 1)
	s.Save("b", 2)

	now = now.Add(45 * time.Second)
	_, ok := s.Get("a")
	assert.True(t, ok, "get refreshes the entry")

	now = now.Add(30 * time.Second)
	s.Cleanup()
	assert.Equal(t, 1, s.Len())
	_, ok = s.Get("b")
	assert.False(t, ok)
	_, ok = s.Get("a")
	assert.True(t, ok)
}

func TestTTLStore_StopIsIdempotent(t *testing.T) {
	s := NewTTLStore[int](0)
	s.Stop()
	s.Stop()
	assert.Equal(t, DefaultStoreTTL, s.ttl)
}

func TestTTLStore_Take(t *testing.T) {
	s := NewTTLStore[string](time.Minute)
	defer s.Stop()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Save("a", "one")
	v, ok := s.Take("a")
	assert.True(t, ok)
	assert.Equal(t, "one", v)
	_, ok = s.Take("a")
	assert.False(t, ok)

	s.Save("b", "two")
	now = now.Add(2 * time.Minute)
	_, ok = s.Take("b")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}
