package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/keyring"
	"github.com/opencpx/cpx/pkg/queue"
)

// stubServer emulates the cpxd reply shapes for client-side testing.
type stubServer struct {
	t     *testing.T
	keys  *keyring.Keyring
	salt  string
	seen  map[string]int
	creds chan [2]string
}

func newStubServer(t *testing.T) (*stubServer, *httptest.Server) {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "key")
	require.NoError(t, keyring.Generate(keyPath, 1024))
	keys, err := keyring.Load(keyPath)
	require.NoError(t, err)

	s := &stubServer{
		t:     t,
		keys:  keys,
		salt:  "12345678",
		seen:  make(map[string]int),
		creds: make(chan [2]string, 1),
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *stubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api" {
		http.NotFound(w, r)
		return
	}
	var env struct {
		Function string            `json:"function"`
		Args     []json.RawMessage `json:"args"`
	}
	require.NoError(s.t, json.Unmarshal([]byte(r.FormValue("request")), &env))
	s.seen[env.Function]++

	w.Header().Set("Content-Type", "application/json")
	switch env.Function {
	case "get_salt":
		e, n := s.keys.PublicKey()
		writeStub(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"salt":   s.salt,
				"pubkey": map[string]string{"E": e, "N": n},
			},
		})

	case "login":
		var username, cipher string
		require.NoError(s.t, json.Unmarshal(env.Args[0], &username))
		require.NoError(s.t, json.Unmarshal(env.Args[1], &cipher))

		plain, err := s.keys.Decrypt(cipher)
		require.NoError(s.t, err)
		require.True(s.t, strings.HasPrefix(string(plain), s.salt))
		password := string(plain[len(s.salt):])
		s.creds <- [2]string{username, password}

		if password != "secret" {
			writeStub(w, map[string]any{
				"success": false, "errcode": "AUTH_FAILED", "message": "authentication failed",
			})
			return
		}
		writeStub(w, map[string]any{
			"success": true,
			"result":  map[string]any{"profile": "Default", "statetime": 100, "timestamp": 101},
		})

	case "get_queue_list":
		writeStub(w, map[string]any{
			"success": true,
			"result":  []map[string]any{{"name": "support"}},
		})

	default:
		writeStub(w, map[string]any{
			"success": false, "errcode": "FUNCTION_NOEXISTS", "message": "unknown function",
		})
	}
}

func writeStub(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginHandshake(t *testing.T) {
	t.Parallel()
	stub, srv := newStubServer(t)

	c, err := New(srv.URL)
	require.NoError(t, err)

	out, err := c.Login(context.Background(), "alice", "secret", LoginOptions{})
	require.NoError(t, err)
	require.Equal(t, "Default", out.Profile)

	creds := <-stub.creds
	require.Equal(t, "alice", creds[0])
	require.Equal(t, "secret", creds[1])
	require.Equal(t, 1, stub.seen["get_salt"])
}

func TestLoginAuthFailure(t *testing.T) {
	t.Parallel()
	_, srv := newStubServer(t)

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "alice", "wrong", LoginOptions{})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.IsAuthFailed())
}

func TestUnknownFunctionError(t *testing.T) {
	t.Parallel()
	_, srv := newStubServer(t)

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "bogus")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "FUNCTION_NOEXISTS", apiErr.Errcode)
}

func TestQueueListDecodes(t *testing.T) {
	t.Parallel()
	_, srv := newStubServer(t)

	c, err := New(srv.URL)
	require.NoError(t, err)

	queues, err := c.QueueList(context.Background())
	require.NoError(t, err)
	require.Equal(t, []QueueInfo{{Name: "support"}}, queues)
}

func TestPollTimeoutSurfaces(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/poll", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestTimeout)
		_, _ = w.Write([]byte(`{"success":false,"message":"poll timeout"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Poll(context.Background(), time.Second)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.IsPollTimeout())
}

func TestLeaderClient(t *testing.T) {
	t.Parallel()

	entries := map[string]queue.Entry{}
	leader := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !leader {
			w.WriteHeader(http.StatusConflict)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/cluster/queues/register":
			var e queue.Entry
			require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
			entries[e.Name] = e
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/cluster/queues/deregister":
			var req struct{ Name, Node string }
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			delete(entries, req.Name)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/cluster/queues":
			out := make([]queue.Entry, 0, len(entries))
			for _, e := range entries {
				out = append(out, e)
			}
			_ = json.NewEncoder(w).Encode(out)
		case r.Method == http.MethodGet:
			name := strings.TrimPrefix(r.URL.Path, "/cluster/queues/")
			e, ok := entries[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(e)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	lc := NewLeaderClient(srv.URL)

	entry := queue.Entry{Name: "support", Node: "node-a", Weight: 2, Recipe: "default"}
	require.NoError(t, lc.Register(ctx, entry))

	got, ok, err := lc.Lookup(ctx, "support")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry, got)

	_, ok, err = lc.Lookup(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	list, err := lc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	leader = false
	_, err = lc.List(ctx)
	require.ErrorIs(t, err, queue.ErrNotLeader)
}
