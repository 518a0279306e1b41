package signals

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session is one open-to-close use of the snapshot interface. Each session may
// take exactly one snapshot; afterwards it only reports end-of-data.
type Session struct {
	ID       string
	Opened   time.Time
	store    *Store
	table    *SessionTable
	consumed bool
	closed   bool
	pending  []byte // frozen snapshot not yet drained through Read
	lastUsed time.Time
	sync.Mutex
}

// Consumed tells whether the session's one snapshot has been taken.
func (s *Session) Consumed() bool {
	s.Lock()
	defer s.Unlock()
	return s.consumed
}

// Snapshot returns channel A then channel B as '0'/'1' bytes the first time it is
// called, and an empty slice on every later call. A closed session returns
// ErrInvalidSession.
func (s *Session) Snapshot() ([]byte, error) {
	s.Lock()
	defer s.Unlock()
	return s.takeLocked()
}

func (s *Session) takeLocked() ([]byte, error) {
	if s.closed {
		return nil, ErrInvalidSession
	}
	s.lastUsed = time.Now()
	if s.consumed {
		return []byte{}, nil
	}
	a, b := s.store.SnapshotPair()
	data := EncodeSnapshot(a, b)
	s.consumed = true
	if s.table != nil {
		s.table.served(s, data, len(a))
	}
	return data, nil
}

// Read implements io.Reader. The first call freezes the snapshot; it is then
// handed out over as many calls as p requires, followed by io.EOF.
func (s *Session) Read(p []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return 0, ErrInvalidSession
	}
	if !s.consumed {
		data, err := s.takeLocked()
		if err != nil {
			return 0, err
		}
		s.pending = data
	}
	if len(s.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close releases the session from its table.
func (s *Session) Close() error {
	if s.table == nil {
		return ErrInvalidSession
	}
	return s.table.Close(s.ID)
}

// ServeHook is called once for each snapshot handed out, with the session, the
// encoded bytes and the per-channel sample count. It runs with the session locked.
type ServeHook func(s *Session, data []byte, filled int)

// SessionTable tracks open sessions against one Store.
type SessionTable struct {
	store    *Store
	sessions map[string]*Session
	onServe  atomic.Pointer[ServeHook]
	opened   int64
	sync.Mutex // guards sessions and opened
}

// NewSessionTable creates a table of sessions reading from store.
func NewSessionTable(store *Store) *SessionTable {
	return &SessionTable{store: store, sessions: make(map[string]*Session)}
}

// SetServeHook registers h to hear about every snapshot served.
func (st *SessionTable) SetServeHook(h ServeHook) {
	st.onServe.Store(&h)
}

// served must not take st's lock: it runs with s locked, and ReapIdle locks
// sessions while holding st.
func (st *SessionTable) served(s *Session, data []byte, filled int) {
	if h := st.onServe.Load(); h != nil && *h != nil {
		(*h)(s, data, filled)
	}
}

// Open creates a new, unconsumed session.
func (st *SessionTable) Open() *Session {
	now := time.Now()
	s := &Session{
		ID:       ulid.Make().String(),
		Opened:   now,
		lastUsed: now,
		store:    st.store,
		table:    st,
	}
	st.Lock()
	defer st.Unlock()
	st.sessions[s.ID] = s
	st.opened++
	return s
}

// Get returns the open session with the given id.
func (st *SessionTable) Get(id string) (*Session, error) {
	st.Lock()
	defer st.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrInvalidSession
	}
	return s, nil
}

// Read serves the one-shot snapshot for session id. An already consumed session
// yields an empty slice and no error. A session closed after the lookup is
// still refused, by Snapshot.
func (st *SessionTable) Read(id string) ([]byte, error) {
	s, err := st.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Snapshot()
}

// Close forgets session id. The Store is not affected.
func (st *SessionTable) Close(id string) error {
	st.Lock()
	defer st.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return ErrInvalidSession
	}
	delete(st.sessions, id)
	s.Lock()
	s.closed = true
	s.Unlock()
	return nil
}

// Len returns the number of open sessions.
func (st *SessionTable) Len() int {
	st.Lock()
	defer st.Unlock()
	return len(st.sessions)
}

// Opened returns the number of sessions ever opened.
func (st *SessionTable) Opened() int64 {
	st.Lock()
	defer st.Unlock()
	return st.opened
}

// ReapIdle closes every session unused for longer than maxIdle and returns how many it closed.
func (st *SessionTable) ReapIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	st.Lock()
	defer st.Unlock()
	reaped := 0
	for id, s := range st.sessions {
		s.Lock()
		if s.lastUsed.Before(cutoff) {
			s.closed = true
			delete(st.sessions, id)
			reaped++
		}
		s.Unlock()
	}
	return reaped
}
