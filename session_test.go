package signals

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShotRead(t *testing.T) {
	store := NewStore(5)
	a := samples(1, 0, 1, 1, 0)
	b := samples(0, 0, 1, 0, 1)
	for i := range a {
		store.AppendPair(a[i], b[i])
	}
	st := NewSessionTable(store)
	s := st.Open()
	assert.False(t, s.Consumed())

	data, err := st.Read(s.ID)
	require.Nil(t, err)
	assert.Equal(t, "1011000101", string(data))
	assert.True(t, s.Consumed())

	// Consumed sessions keep returning nothing, whatever is appended.
	for range 3 {
		store.AppendPair(1, 1)
		data, err = st.Read(s.ID)
		assert.Nil(t, err)
		assert.NotNil(t, data)
		assert.Empty(t, data)
	}

	// A fresh session sees the newest window.
	other := st.Open()
	assert.NotEqual(t, s.ID, other.ID)
	data, err = other.Snapshot()
	assert.Nil(t, err)
	assert.Equal(t, "1011101111", string(data))
}

func TestEmptyStoreRead(t *testing.T) {
	st := NewSessionTable(NewStore(5))
	s := st.Open()
	data, err := st.Read(s.ID)
	assert.Nil(t, err)
	assert.Empty(t, data)
	assert.True(t, s.Consumed())

	// The empty read used up the session's one snapshot.
	st.store.AppendPair(1, 0)
	data, err = s.Snapshot()
	assert.Nil(t, err)
	assert.Empty(t, data)
}

func TestSecondReadEmptyDuringAppends(t *testing.T) {
	store := NewStore(DefaultCapacity)
	for range 10 {
		store.AppendPair(1, 0)
	}
	st := NewSessionTable(store)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				store.AppendPair(Sample(i%2), Sample(i%2))
			}
		}
	}()
	for range 100 {
		s := st.Open()
		first, err := s.Snapshot()
		require.Nil(t, err)
		require.NotEmpty(t, first)
		require.Equal(t, 0, len(first)%2)
		second, err := s.Snapshot()
		assert.Nil(t, err)
		assert.Empty(t, second)
		require.Nil(t, s.Close())
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, int64(100), st.Opened())
}

func TestSessionReader(t *testing.T) {
	store := NewStore(5)
	for _, s := range samples(1, 1, 0) {
		store.AppendPair(s, 1-s)
	}
	st := NewSessionTable(store)
	s := st.Open()

	// Drain in small pieces: appends after the first Read do not leak in.
	buf := make([]byte, 4)
	n, err := s.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, "1100", string(buf[:n]))
	store.AppendPair(1, 1)
	rest, err := io.ReadAll(s)
	assert.Nil(t, err)
	assert.Equal(t, "01", string(rest))

	n, err = s.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	require.Nil(t, s.Close())
	_, err = s.Read(buf)
	assert.True(t, errors.Is(err, ErrInvalidSession))
	assert.True(t, errors.Is(s.Close(), ErrInvalidSession))
}

func TestInvalidSession(t *testing.T) {
	st := NewSessionTable(NewStore(5))
	_, err := st.Read("no-such-session")
	assert.True(t, errors.Is(err, ErrInvalidSession))
	assert.True(t, errors.Is(st.Close("no-such-session"), ErrInvalidSession))

	s := st.Open()
	require.Nil(t, st.Close(s.ID))
	_, err = st.Read(s.ID)
	assert.True(t, errors.Is(err, ErrInvalidSession))
}

func TestServeHook(t *testing.T) {
	store := NewStore(5)
	store.AppendPair(1, 0)
	store.AppendPair(1, 1)
	st := NewSessionTable(store)
	var calls int
	var gotData string
	var gotFilled int
	st.SetServeHook(func(s *Session, data []byte, filled int) {
		calls++
		gotData, gotFilled = string(data), filled
	})
	s := st.Open()
	s.Snapshot()
	s.Snapshot()

	// A closed session is refused and does not reach the hook.
	closed := st.Open()
	require.Nil(t, closed.Close())
	_, err := closed.Snapshot()
	assert.True(t, errors.Is(err, ErrInvalidSession))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "1101", gotData)
	assert.Equal(t, 2, gotFilled)
}

func TestReapIdle(t *testing.T) {
	st := NewSessionTable(NewStore(5))
	old := st.Open()
	fresh := st.Open()
	old.Lock()
	old.lastUsed = time.Now().Add(-time.Hour)
	old.Unlock()

	assert.Equal(t, 1, st.ReapIdle(time.Minute))
	assert.Equal(t, 1, st.Len())
	_, err := st.Get(old.ID)
	assert.True(t, errors.Is(err, ErrInvalidSession))
	_, err = old.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, ErrInvalidSession))
	got, err := st.Get(fresh.ID)
	assert.Nil(t, err)
	assert.Equal(t, fresh, got)
}

func TestClosedSessionServesNothing(t *testing.T) {
	store := NewStore(5)
	store.AppendPair(1, 0)
	st := NewSessionTable(store)

	s := st.Open()
	require.Nil(t, s.Close())
	data, err := s.Snapshot()
	assert.True(t, errors.Is(err, ErrInvalidSession))
	assert.Nil(t, data)
	assert.False(t, s.Consumed())

	// A session found by Get but closed before its read is refused too.
	raced := st.Open()
	found, err := st.Get(raced.ID)
	require.Nil(t, err)
	require.Nil(t, st.Close(raced.ID))
	_, err = found.Snapshot()
	assert.True(t, errors.Is(err, ErrInvalidSession))

	reaped := st.Open()
	reaped.Lock()
	reaped.lastUsed = time.Now().Add(-time.Hour)
	reaped.Unlock()
	assert.Equal(t, 1, st.ReapIdle(time.Minute))
	_, err = reaped.Snapshot()
	assert.True(t, errors.Is(err, ErrInvalidSession))
}
