package session

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(n int) string { return strconv.Itoa(n) }

func newTestSession(t *testing.T, key string) (*Session, *memStream) {
	t.Helper()
	stream := newMemStream()
	s, err := New(key, stream, testOptions())
	require.NoError(t, err)
	return s, stream
}

func TestManagerAddAndGet(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	s, _ := newTestSession(t, "10.0.0.2:19000")
	require.True(t, m.Add(s))

	got, ok := m.Get("10.0.0.2:19000")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.False(t, got.StartedAt.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestManagerRejectsDuplicate(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	a, _ := newTestSession(t, "sink")
	b, _ := newTestSession(t, "sink")
	assert.True(t, m.Add(a))
	assert.False(t, m.Add(b))
	assert.Equal(t, 1, m.Len())
}

func TestManagerRemoveClosesSession(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	s, stream := newTestSession(t, "sink")
	m.Add(s)
	m.Remove("sink")

	assert.Equal(t, 0, m.Len())
	assert.True(t, stream.isClosed())
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after Remove")
	}

	// Removing again is a no-op.
	m.Remove("sink")
}

func TestManagerListSorted(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	for _, key := range []string{"c", "a", "b"} {
		s, _ := newTestSession(t, key)
		m.Add(s)
	}
	var keys []string
	for _, s := range m.List() {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	m.CloseAll()
	assert.Empty(t, m.List())
}
