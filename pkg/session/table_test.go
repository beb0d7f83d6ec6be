package session

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn satisfies Conn with an externally closable done channel.
type fakeConn struct {
	done chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) kill() { close(c.done) }

func TestIssueAndLookup(t *testing.T) {
	table := NewTable(nil)

	id := table.Issue()
	require.Len(t, id, 32, "session id should be 128 bits of hex")

	snap, err := table.Lookup(id)
	require.NoError(t, err)
	require.Equal(t, id, snap.ID)
	require.Empty(t, snap.Salt)
	require.False(t, snap.LoggedIn())

	t.Run("ids are unique", func(t *testing.T) {
		other := table.Issue()
		require.NotEqual(t, id, other)
		require.Equal(t, 2, table.Len())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := table.Lookup("deadbeefdeadbeefdeadbeefdeadbeef")
		require.ErrorIs(t, err, ErrBadCookie)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := table.Lookup("")
		require.ErrorIs(t, err, ErrBadCookie)
	})
}

func TestBindSalt(t *testing.T) {
	table := NewTable(nil)
	id := table.Issue()

	salt, err := table.BindSalt(id)
	require.NoError(t, err)

	// Salt is a decimal rendering of a 32-bit integer.
	_, err = strconv.ParseUint(salt, 10, 32)
	require.NoError(t, err, "salt %q should parse as uint32", salt)

	snap, err := table.Lookup(id)
	require.NoError(t, err)
	require.Equal(t, salt, snap.Salt)

	t.Run("second salt supersedes first", func(t *testing.T) {
		salt2, err := table.BindSalt(id)
		require.NoError(t, err)

		snap, err := table.Lookup(id)
		require.NoError(t, err)
		require.Equal(t, salt2, snap.Salt)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := table.BindSalt("nope")
		require.ErrorIs(t, err, ErrBadCookie)
	})
}

func TestBindConnection(t *testing.T) {
	table := NewTable(nil)
	id := table.Issue()
	salt, err := table.BindSalt(id)
	require.NoError(t, err)

	conn := newFakeConn()
	require.NoError(t, table.BindConnection(id, salt, conn))

	snap, err := table.Lookup(id)
	require.NoError(t, err)
	require.True(t, snap.LoggedIn())
	require.Empty(t, snap.Salt, "salt should be consumed by a successful bind")

	t.Run("salt is one-shot", func(t *testing.T) {
		err := table.BindConnection(id, salt, newFakeConn())
		require.ErrorIs(t, err, ErrSaltMismatch)
	})

	t.Run("bind without salt", func(t *testing.T) {
		other := table.Issue()
		err := table.BindConnection(other, "12345", newFakeConn())
		require.ErrorIs(t, err, ErrSaltMismatch)
	})

	t.Run("bind with superseded salt", func(t *testing.T) {
		other := table.Issue()
		first, err := table.BindSalt(other)
		require.NoError(t, err)
		_, err = table.BindSalt(other)
		require.NoError(t, err)

		err = table.BindConnection(other, first, newFakeConn())
		require.ErrorIs(t, err, ErrSaltMismatch)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := table.BindConnection("nope", "1", newFakeConn())
		require.ErrorIs(t, err, ErrBadCookie)
	})
}

func TestWorkerDeathRemovesSession(t *testing.T) {
	table := NewTable(nil)
	id := table.Issue()
	salt, _ := table.BindSalt(id)
	conn := newFakeConn()
	require.NoError(t, table.BindConnection(id, salt, conn))

	conn.kill()

	require.Eventually(t, func() bool {
		_, err := table.Lookup(id)
		return errors.Is(err, ErrBadCookie)
	}, time.Second, 5*time.Millisecond, "dead worker's session should be removed")
}

func TestRevokeKeepsID(t *testing.T) {
	table := NewTable(nil)
	id := table.Issue()
	salt, _ := table.BindSalt(id)
	conn := newFakeConn()
	require.NoError(t, table.BindConnection(id, salt, conn))

	table.Revoke(id)

	snap, err := table.Lookup(id)
	require.NoError(t, err)
	require.False(t, snap.LoggedIn())

	// The revoked worker dying later must not delete the id.
	conn.kill()
	time.Sleep(50 * time.Millisecond)

	_, err = table.Lookup(id)
	require.NoError(t, err, "revoked session id should survive worker exit")
}

func TestReloginSurvivesOldWorkerDeath(t *testing.T) {
	table := NewTable(nil)
	id := table.Issue()

	salt1, _ := table.BindSalt(id)
	conn1 := newFakeConn()
	require.NoError(t, table.BindConnection(id, salt1, conn1))

	table.Revoke(id)

	salt2, _ := table.BindSalt(id)
	conn2 := newFakeConn()
	require.NoError(t, table.BindConnection(id, salt2, conn2))

	// The first worker's death must not evict the second bind.
	conn1.kill()
	time.Sleep(50 * time.Millisecond)

	snap, err := table.Lookup(id)
	require.NoError(t, err)
	require.True(t, snap.LoggedIn())
	require.Same(t, conn2, snap.Conn.(*fakeConn))
}

func TestRevokeUnknownIDIsNoop(t *testing.T) {
	table := NewTable(nil)
	table.Revoke("nope")
	require.Equal(t, 0, table.Len())
}
