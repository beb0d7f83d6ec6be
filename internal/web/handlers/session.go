package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/opencpx/cpx/pkg/web"
)

// poll suspends on the connection worker until an event batch arrives.
// Timeout and worker death both answer 408; the session survives a
// timeout but a killed worker means the next lookup mints a new cookie.
func (d *Dispatcher) poll(w http.ResponseWriter, r *http.Request, rs requestSession, start time.Time) {
	conn := rs.conn()
	if conn == nil {
		d.fail(w, "poll", start, http.StatusForbidden, web.ErrcodeNoAgent, "login required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.cfg.PollTimeout)
	defer cancel()

	res, err := conn.Poll(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.fail(w, "poll", start, http.StatusRequestTimeout, "", "poll timeout")
			return
		}
		code, msg := errcodeFor(err)
		d.fail(w, "poll", start, http.StatusOK, code, msg)
		return
	}
	if res.Killed {
		d.fail(w, "poll", start, http.StatusRequestTimeout, "", "connection terminated")
		return
	}
	d.succeed(w, "poll", start, res)
}

// logout revokes the session binding and stops the worker. The cookie
// stays valid for a future login.
func (d *Dispatcher) logout(w http.ResponseWriter, rs requestSession, start time.Time) {
	d.cfg.Sessions.Revoke(rs.snap.ID)
	if conn := rs.conn(); conn != nil {
		conn.Logout()
	}
	d.succeed(w, "logout", start, nil)
}
