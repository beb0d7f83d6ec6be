// Package session implements the cookie-keyed session table: the
// authoritative mapping from session ids to authentication state and live
// connection workers. The table is the only component shared directly
// between request handlers; every other actor communicates by message.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/metrics"
)

// ErrBadCookie is returned for lookups of unknown or removed session ids.
// Handlers answer it by minting a fresh session and setting a new cookie.
var ErrBadCookie = errors.New("session: bad cookie")

// ErrSaltMismatch is returned when a connection bind presents a salt that
// is no longer the one stored on the session. The handshake is one-shot
// per salt.
var ErrSaltMismatch = errors.New("session: salt missing or superseded")

// Conn is the handle the table keeps for a logged-in agent connection.
// Done is closed when the worker terminates; the table watches it and
// removes the session so later lookups turn into fresh cookies.
type Conn interface {
	Done() <-chan struct{}
}

// Snapshot is an immutable view of one session at lookup time.
type Snapshot struct {
	ID   string
	Salt string
	Conn Conn // nil until login
}

// LoggedIn reports whether the session has a live connection bound.
func (s Snapshot) LoggedIn() bool {
	return s.Conn != nil
}

type entry struct {
	salt string
	conn Conn
	// gen is bumped on every bind and revoke so that a stale liveness
	// watcher cannot remove a session that was rebound since.
	gen uint64
}

// Table is the process-wide session table.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*entry
	metrics metrics.WebMetrics
}

// NewTable creates an empty session table. metrics may be nil.
func NewTable(m metrics.WebMetrics) *Table {
	return &Table{
		entries: make(map[string]*entry),
		metrics: m,
	}
}

// Issue mints a fresh session id and inserts it with no salt and no
// connection.
func (t *Table) Issue() string {
	id := newSessionID()

	t.mu.Lock()
	t.entries[id] = &entry{}
	count := len(t.entries)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordSessionIssued()
		t.metrics.SetActiveSessions(count)
	}
	logger.Debug("session issued", logger.KeySessionID, id)
	return id
}

// Lookup returns a snapshot of the session, or ErrBadCookie when the id is
// unknown.
func (t *Table) Lookup(id string) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, ErrBadCookie
	}

	t.mu.RLock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.RUnlock()
		return Snapshot{}, ErrBadCookie
	}
	snap := Snapshot{ID: id, Salt: e.salt, Conn: e.conn}
	t.mu.RUnlock()
	return snap, nil
}

// BindSalt stores a fresh random salt on the session, overwriting any prior
// one. Two consecutive calls invalidate the first salt.
func (t *Table) BindSalt(id string) (string, error) {
	salt := newSalt()

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return "", ErrBadCookie
	}
	e.salt = salt
	return salt, nil
}

// BindConnection installs a live connection worker on the session. The
// bind succeeds only if salt is still the one stored by BindSalt; the salt
// is consumed so a replayed login cannot bind twice. The table watches the
// worker and removes the session when it dies.
func (t *Table) BindConnection(id, salt string, conn Conn) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return ErrBadCookie
	}
	if e.salt == "" || e.salt != salt {
		t.mu.Unlock()
		return ErrSaltMismatch
	}
	e.salt = ""
	e.conn = conn
	e.gen++
	gen := e.gen
	t.mu.Unlock()

	go t.watch(id, gen, conn.Done())
	return nil
}

// Revoke clears the salt and connection but keeps the id usable, matching
// logout semantics. The dying worker's liveness watcher is neutralised by
// the generation bump.
func (t *Table) Revoke(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return
	}
	e.salt = ""
	e.conn = nil
	e.gen++
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// watch removes the session once the bound worker terminates, unless the
// session was rebound or revoked in the meantime.
func (t *Table) watch(id string, gen uint64, done <-chan struct{}) {
	<-done

	t.mu.Lock()
	e, ok := t.entries[id]
	removed := ok && e.gen == gen
	if removed {
		delete(t.entries, id)
	}
	count := len(t.entries)
	t.mu.Unlock()

	if !removed {
		return
	}
	if t.metrics != nil {
		t.metrics.RecordSessionRemoved()
		t.metrics.SetActiveSessions(count)
	}
	logger.Info("session removed after worker exit", logger.KeySessionID, id)
}

// newSessionID returns 128 bits of entropy in hex.
func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// newSalt returns a random 32-bit integer in decimal form, the shape the
// agent client concatenates in front of the password.
func newSalt() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(b[:])), 10)
}
