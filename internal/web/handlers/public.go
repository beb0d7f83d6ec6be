package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/agent"
	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/web"
)

// checkCookie identifies the caller: the logged-in agent snapshot, or
// BAD_COOKIE (fresh cookie already set by the middleware) or NO_AGENT.
func (d *Dispatcher) checkCookie(w http.ResponseWriter, rs requestSession, start time.Time) {
	if rs.fresh {
		d.fail(w, "check_cookie", start, http.StatusOK, web.ErrcodeBadCookie, "unknown session")
		return
	}
	conn := rs.conn()
	if conn == nil {
		d.fail(w, "check_cookie", start, http.StatusOK, web.ErrcodeNoAgent, "not logged in")
		return
	}
	d.succeed(w, "check_cookie", start, conn.DumpAgent())
}

// getSalt binds a fresh salt to the session and returns it with the node
// public key. A second call supersedes the first salt.
func (d *Dispatcher) getSalt(w http.ResponseWriter, rs requestSession, start time.Time) {
	salt, err := d.cfg.Sessions.BindSalt(rs.snap.ID)
	if err != nil {
		code, msg := errcodeFor(err)
		d.fail(w, "get_salt", start, http.StatusOK, code, msg)
		return
	}
	e, n := d.cfg.Keys.PublicKey()
	d.succeed(w, "get_salt", start, map[string]any{
		"salt":   salt,
		"pubkey": map[string]string{"E": e, "N": n},
	})
}

// loginOpts are the endpoint options posted alongside the credentials.
type loginOpts struct {
	VoipEndpoint     string
	VoipEndpointData string
	UseOutbandRing   bool
}

func resolveLoginOpts(r *http.Request, opts map[string]any) loginOpts {
	lo := loginOpts{
		VoipEndpoint:     r.FormValue("voipendpoint"),
		VoipEndpointData: r.FormValue("voipendpointdata"),
		UseOutbandRing:   r.FormValue("useoutbandring") == "true",
	}
	if opts == nil {
		return lo
	}
	if v, ok := opts["voipendpoint"].(string); ok {
		lo.VoipEndpoint = v
	}
	if v, ok := opts["voipendpointdata"].(string); ok {
		lo.VoipEndpointData = v
	}
	if v, ok := opts["useoutbandring"].(bool); ok {
		lo.UseOutbandRing = v
	}
	return lo
}

// login runs the server half of the handshake: decrypt, salt check,
// store authentication, then worker start and session bind. The reply
// carries the profile and state timestamps the client boots from.
func (d *Dispatcher) login(w http.ResponseWriter, r *http.Request, rs requestSession, args []string, opts map[string]any, start time.Time) {
	username := r.FormValue("username")
	cipher := r.FormValue("password")
	if len(args) > 0 {
		username = args[0]
	}
	if len(args) > 1 {
		cipher = args[1]
	}

	salt := rs.snap.Salt
	if salt == "" {
		d.recordLogin(web.ErrcodeNoSalt)
		d.fail(w, "login", start, http.StatusOK, web.ErrcodeNoSalt, "salt missing or superseded")
		return
	}

	plaintext, err := d.cfg.Keys.Decrypt(cipher)
	if err != nil {
		d.recordLogin(web.ErrcodeDecryptFailed)
		d.fail(w, "login", start, http.StatusOK, web.ErrcodeDecryptFailed, "could not decrypt credentials")
		return
	}

	if !strings.HasPrefix(string(plaintext), salt) {
		d.recordLogin(web.ErrcodeNoSalt)
		d.fail(w, "login", start, http.StatusOK, web.ErrcodeNoSalt, "salt missing or superseded")
		return
	}
	password := string(plaintext[len(salt):])

	model, err := d.cfg.Store.Authenticate(r.Context(), username, password)
	if err != nil {
		code, msg := errcodeFor(err)
		d.recordLogin(code)
		d.fail(w, "login", start, http.StatusOK, code, msg)
		return
	}

	lo := resolveLoginOpts(r, opts)
	spec, err := endpoint.Resolve(lo.VoipEndpoint, lo.VoipEndpointData, username)
	if err != nil {
		d.recordLogin(web.ErrcodeUnknown)
		d.fail(w, "login", start, http.StatusOK, web.ErrcodeUnknown, err.Error())
		return
	}

	a := agent.FromModel(model, lo.UseOutbandRing)
	fsm := agent.NewFSM(a, agent.FSMConfig{
		Events:     d.cfg.Events,
		Properties: d.cfg.Properties,
		Starter:    d.cfg.Starter,
		Metrics:    d.cfg.ChannelMetrics,
		Agents:     d.cfg.Agents,
		Queues:     d.cfg.Queues,
	})
	conn := agent.NewConnection(agent.ConnConfig{
		Agent:       a,
		FSM:         fsm,
		Events:      d.cfg.Events,
		IdleTimeout: d.cfg.IdleTimeout,
		Metrics:     d.cfg.Metrics,
	})
	conn.SetEndpoint(&spec)

	if err := d.cfg.Sessions.BindConnection(rs.snap.ID, salt, conn); err != nil {
		conn.Logout()
		code, msg := errcodeFor(err)
		d.recordLogin(code)
		d.fail(w, "login", start, http.StatusOK, code, msg)
		return
	}

	d.recordLogin("success")
	logger.Info("agent logged in",
		logger.KeyAgent, a.Login,
		logger.KeySessionID, rs.snap.ID)

	snap := conn.DumpAgent()
	d.succeed(w, "login", start, map[string]any{
		"profile":   snap.Profile,
		"statetime": snap.StateTime,
		"timestamp": snap.Timestamp,
	})
}

func (d *Dispatcher) recordLogin(result string) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RecordLogin(result)
	}
}

// queueList lists the configured queues.
func (d *Dispatcher) queueList(w http.ResponseWriter, r *http.Request, start time.Time) {
	queues, err := d.cfg.Store.ListQueueConfigs(r.Context())
	if err != nil {
		code, msg := errcodeFor(err)
		d.fail(w, "get_queue_list", start, http.StatusOK, code, msg)
		return
	}
	out := make([]map[string]any, 0, len(queues))
	for _, q := range queues {
		out = append(out, map[string]any{"name": q.Name})
	}
	d.succeed(w, "get_queue_list", start, out)
}

// brandList lists the configured clients.
func (d *Dispatcher) brandList(w http.ResponseWriter, r *http.Request, start time.Time) {
	clients, err := d.cfg.Store.ListClients(r.Context())
	if err != nil {
		code, msg := errcodeFor(err)
		d.fail(w, "get_brand_list", start, http.StatusOK, code, msg)
		return
	}
	out := make([]map[string]any, 0, len(clients))
	for _, c := range clients {
		out = append(out, map[string]any{"id": c.ID, "label": c.Label})
	}
	d.succeed(w, "get_brand_list", start, out)
}

// releaseOpts lists the configured release reasons.
func (d *Dispatcher) releaseOpts(w http.ResponseWriter, r *http.Request, start time.Time) {
	options, err := d.cfg.Store.ListReleaseOptions(r.Context())
	if err != nil {
		code, msg := errcodeFor(err)
		d.fail(w, "get_release_opts", start, http.StatusOK, code, msg)
		return
	}
	out := make([]map[string]any, 0, len(options))
	for _, o := range options {
		out = append(out, map[string]any{"id": o.ID, "label": o.Label, "bias": o.Bias})
	}
	d.succeed(w, "get_release_opts", start, out)
}
