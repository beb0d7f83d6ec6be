// Package handlers implements the agent-facing HTTP surface of cpxd:
// cookie issuance, the salted-RSA login handshake, the public catalog
// operations, long polling, and the forwarding of per-agent verbs to the
// connection worker. It also hosts the internal cluster RPC used by the
// queue registry.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/internal/telemetry"
	"github.com/opencpx/cpx/pkg/agent"
	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/event"
	"github.com/opencpx/cpx/pkg/keyring"
	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/opencpx/cpx/pkg/nls"
	"github.com/opencpx/cpx/pkg/queue"
	"github.com/opencpx/cpx/pkg/session"
	"github.com/opencpx/cpx/pkg/store"
	"github.com/opencpx/cpx/pkg/web"
)

// Cookie names of the session protocol.
const (
	CookieSession  = "cpx_id"
	CookieLanguage = "cpx_lang"
)

// DefaultPollTimeout bounds one long poll when the config leaves it unset.
const DefaultPollTimeout = 30 * time.Second

// Store is the slice of the configuration store the dispatcher needs.
// *store.GORMStore satisfies it; tests install fakes.
type Store interface {
	Authenticate(ctx context.Context, login, password string) (*store.AgentModel, error)
	ListQueueConfigs(ctx context.Context) ([]*store.QueueModel, error)
	ListClients(ctx context.Context) ([]*store.ClientModel, error)
	ListReleaseOptions(ctx context.Context) ([]*store.ReleaseOptionModel, error)
	Healthcheck(ctx context.Context) error
}

// QueueRegistry is the slice of the queue manager the dispatcher needs:
// the transfer binder handed to agent FSMs plus the leader RPC surface
// served under /cluster/queues.
type QueueRegistry interface {
	agent.QueueBinder
	AddQueue(ctx context.Context, name, recipe string, weight int) (queue.Entry, *queue.Worker, bool, error)
	QueryQueue(ctx context.Context, name string) (bool, error)
	HandleRegister(e queue.Entry) error
	HandleDeregister(name, node string) error
	HandleLookup(name string) (queue.Entry, bool, error)
	HandleList() ([]queue.Entry, error)
}

// Config assembles a dispatcher.
type Config struct {
	Sessions   *session.Table
	Store      Store
	Keys       *keyring.Keyring
	Events     *event.Manager
	Agents     *agent.Registry
	Properties *channel.Registry
	Starter    endpoint.Starter
	Queues     QueueRegistry
	Languages  *nls.Catalog
	Metrics    metrics.WebMetrics

	// ChannelMetrics is handed to every agent FSM spawned at login.
	ChannelMetrics metrics.ChannelMetrics

	AgentRoot   string
	ContribRoot string
	DynamicRoot string

	IdleTimeout time.Duration
	PollTimeout time.Duration
}

// Dispatcher routes every agent-facing request: session middleware first,
// then either a public operation, a session operation, or a forward to
// the connection worker owning the session.
type Dispatcher struct {
	cfg Config
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	return &Dispatcher{cfg: cfg}
}

type ctxKey int

const sessionKey ctxKey = iota

// requestSession is what the middleware learned about the caller: the
// session snapshot, and whether the cookie had to be reissued.
type requestSession struct {
	snap  session.Snapshot
	fresh bool
}

func (rs requestSession) conn() *agent.Connection {
	c, _ := rs.snap.Conn.(*agent.Connection)
	return c
}

func sessionFrom(r *http.Request) requestSession {
	rs, _ := r.Context().Value(sessionKey).(requestSession)
	return rs
}

// WithSession is the cookie middleware. Every agent-facing route runs
// through it, static files included: a browser's very first GET already
// receives its session and language cookies. A missing, malformed or
// unknown cookie is replaced by a fresh session in the same response, and
// any live connection gets its idle timer reset.
func (d *Dispatcher) WithSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := requestSession{}

		if c, err := r.Cookie(CookieSession); err == nil && c.Value != "" {
			snap, err := d.cfg.Sessions.Lookup(c.Value)
			if err == nil {
				rs.snap = snap
			} else {
				rs.fresh = true
			}
		} else {
			rs.fresh = true
		}

		if rs.fresh {
			id := d.cfg.Sessions.Issue()
			snap, err := d.cfg.Sessions.Lookup(id)
			if err != nil {
				web.WriteFailureStatus(w, http.StatusInternalServerError, web.ErrcodeUnknown, "session issue failed")
				return
			}
			rs.snap = snap
			http.SetCookie(w, &http.Cookie{Name: CookieSession, Value: id, Path: "/"})
		}

		lang := nls.DefaultLanguage
		if d.cfg.Languages != nil {
			lang = d.cfg.Languages.Match(r.Header.Get("Accept-Language"))
		}
		http.SetCookie(w, &http.Cookie{Name: CookieLanguage, Value: lang, Path: "/"})

		if conn := rs.conn(); conn != nil {
			conn.KeepAlive()
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey, rs)))
	}
}

// Health answers the liveness probe. The store ping is the only
// dependency checked; everything else degrades per-request.
func (d *Dispatcher) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if d.cfg.Store != nil {
		if err := d.cfg.Store.Healthcheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// API serves POST /api: form field "request" holds a JSON object
// {"function": string, "args": array}. Legacy paths funnel into the same
// dispatch.
func (d *Dispatcher) API(w http.ResponseWriter, r *http.Request) {
	raw := r.FormValue("request")
	if raw == "" {
		d.fail(w, "", time.Now(), http.StatusOK, web.ErrcodeNoFunction, "missing request")
		return
	}

	fn, args, opts, err := decodeRequest(raw)
	if err != nil {
		d.fail(w, "", time.Now(), http.StatusOK, web.ErrcodeNoFunction, "malformed request")
		return
	}
	d.dispatch(w, r, fn, args, opts)
}

// Fallback handles every path without an explicit route: GETs are first
// tried against the static roots, everything left over is parsed as a
// legacy API path and dispatched like the JSON API.
func (d *Dispatcher) Fallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && d.serveStatic(w, r) {
		return
	}
	fn, args := parseLegacyPath(r.URL.Path)
	d.dispatch(w, r, fn, args, nil)
}

// dispatch executes one decoded API function.
func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request, fn string, args []string, opts map[string]any) {
	start := time.Now()
	rs := sessionFrom(r)

	if fn == "" {
		d.fail(w, fn, start, http.StatusOK, web.ErrcodeNoFunction, "no function given")
		return
	}

	ctx, span := telemetry.StartAPISpan(r.Context(), fn)
	defer span.End()
	r = r.WithContext(ctx)

	switch fn {
	case "check_cookie":
		d.checkCookie(w, rs, start)
	case "get_salt":
		d.getSalt(w, rs, start)
	case "login":
		d.login(w, r, rs, args, opts, start)
	case "get_queue_list":
		d.queueList(w, r, start)
	case "get_brand_list":
		d.brandList(w, r, start)
	case "get_release_opts":
		d.releaseOpts(w, r, start)
	case "add_queue":
		d.addQueue(w, r, args, start)
	case "query_queue":
		d.queryQueue(w, r, args, start)
	case "poll":
		d.poll(w, r, rs, start)
	case "logout":
		d.logout(w, rs, start)
	default:
		d.forward(w, r, rs, fn, args, start)
	}
}

// forward hands a per-agent verb to the connection worker. Without a live
// connection the path is session-required and answers 403.
func (d *Dispatcher) forward(w http.ResponseWriter, r *http.Request, rs requestSession, fn string, args []string, start time.Time) {
	conn := rs.conn()
	if conn == nil {
		d.fail(w, fn, start, http.StatusForbidden, web.ErrcodeNoAgent, "login required")
		return
	}

	result, err := conn.API(r.Context(), fn, args)
	if err != nil {
		telemetry.RecordError(r.Context(), err)
		code, msg := errcodeFor(err)
		d.fail(w, fn, start, http.StatusOK, code, msg)
		return
	}
	d.succeed(w, fn, start, result)
}

func (d *Dispatcher) succeed(w http.ResponseWriter, fn string, start time.Time, result any) {
	if result == nil {
		web.WriteSuccess(w)
	} else {
		web.WriteResult(w, result)
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RecordRequest(fn, http.StatusOK, time.Since(start), "")
	}
}

func (d *Dispatcher) fail(w http.ResponseWriter, fn string, start time.Time, status int, errcode, msg string) {
	if status == http.StatusOK {
		web.WriteFailure(w, errcode, msg)
	} else {
		web.WriteFailureStatus(w, status, errcode, msg)
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RecordRequest(fn, status, time.Since(start), errcode)
	}
}

// decodeRequest unpacks the JSON API envelope. String args pass through;
// a trailing object argument carries the login options.
func decodeRequest(raw string) (fn string, args []string, opts map[string]any, err error) {
	var env struct {
		Function string            `json:"function"`
		Args     []json.RawMessage `json:"args"`
	}
	if err = json.Unmarshal([]byte(raw), &env); err != nil {
		return "", nil, nil, err
	}

	for _, a := range env.Args {
		var s string
		if json.Unmarshal(a, &s) == nil {
			args = append(args, s)
			continue
		}
		var o map[string]any
		if json.Unmarshal(a, &o) == nil {
			opts = o
			continue
		}
		// numbers and booleans travel as their literal text
		args = append(args, strings.Trim(string(a), `"`))
	}
	return env.Function, args, opts, nil
}

// legacyNames maps the legacy path heads whose function name differs from
// the path segment. Everything else dispatches under its own name.
var legacyNames = map[string]string{
	"getsalt":     "get_salt",
	"checkcookie": "check_cookie",
	"brandlist":   "get_brand_list",
	"queuelist":   "get_queue_list",
	"releaseopts": "get_release_opts",
	"state":       "set_state",
}

// parseLegacyPath turns /state/released/lunch into ("set_state",
// ["released","lunch"]). The first segment is the function, the rest are
// its arguments.
func parseLegacyPath(p string) (string, []string) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	segs := strings.Split(p, "/")
	fn := segs[0]
	if mapped, ok := legacyNames[fn]; ok {
		fn = mapped
	}
	args := segs[1:]
	if len(args) == 0 {
		args = nil
	}
	return fn, args
}

// errcodeFor maps internal errors onto the closed errcode taxonomy. Known
// protocol errors keep their message; anything unrecognised is logged and
// collapsed to UNKNOWN_ERROR so internals never leak.
func errcodeFor(err error) (code, msg string) {
	switch {
	case errors.Is(err, agent.ErrUnknownFunction):
		return web.ErrcodeFunctionNoExists, err.Error()
	case errors.Is(err, session.ErrBadCookie):
		return web.ErrcodeBadCookie, "unknown session"
	case errors.Is(err, session.ErrSaltMismatch):
		return web.ErrcodeNoSalt, "salt missing or superseded"
	case errors.Is(err, keyring.ErrDecrypt):
		return web.ErrcodeDecryptFailed, "could not decrypt credentials"
	case errors.Is(err, store.ErrInvalidCredentials),
		errors.Is(err, store.ErrAgentNotFound),
		errors.Is(err, store.ErrAgentDisabled):
		return web.ErrcodeAuthFailed, "authentication failed"
	case errors.Is(err, agent.ErrUnknownState),
		errors.Is(err, agent.ErrNoChannel),
		errors.Is(err, agent.ErrNotSupervisor),
		errors.Is(err, agent.ErrStopped):
		return web.ErrcodeUnknown, err.Error()
	case errors.Is(err, queue.ErrTimeout):
		return web.ErrcodeUnknown, "queue registry did not respond"
	default:
		logger.Error("api request failed", logger.Err(err))
		return web.ErrcodeUnknown, "internal error"
	}
}
