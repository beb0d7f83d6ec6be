package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opencpx/cpx/pkg/web"
)

// addQueue starts (or finds) a queue through the cluster registry. The
// reply says which node owns it and whether it already existed.
func (d *Dispatcher) addQueue(w http.ResponseWriter, r *http.Request, args []string, start time.Time) {
	if d.cfg.Queues == nil {
		d.fail(w, "add_queue", start, http.StatusOK, web.ErrcodeUnknown, "queue manager disabled")
		return
	}
	if len(args) == 0 || args[0] == "" {
		d.fail(w, "add_queue", start, http.StatusOK, web.ErrcodeUnknown, "queue name required")
		return
	}

	recipe := ""
	if len(args) > 1 {
		recipe = args[1]
	}
	weight := 0
	if len(args) > 2 {
		weight, _ = strconv.Atoi(args[2])
	}

	entry, _, existed, err := d.cfg.Queues.AddQueue(r.Context(), args[0], recipe, weight)
	if err != nil {
		code, msg := errcodeFor(err)
		d.fail(w, "add_queue", start, http.StatusOK, code, msg)
		return
	}
	d.succeed(w, "add_queue", start, map[string]any{
		"name":    entry.Name,
		"node":    entry.Node,
		"weight":  entry.Weight,
		"recipe":  entry.Recipe,
		"existed": existed,
	})
}

// queryQueue reports whether a queue is registered anywhere in the
// cluster.
func (d *Dispatcher) queryQueue(w http.ResponseWriter, r *http.Request, args []string, start time.Time) {
	if d.cfg.Queues == nil {
		d.fail(w, "query_queue", start, http.StatusOK, web.ErrcodeUnknown, "queue manager disabled")
		return
	}
	if len(args) == 0 || args[0] == "" {
		d.fail(w, "query_queue", start, http.StatusOK, web.ErrcodeUnknown, "queue name required")
		return
	}

	exists, err := d.cfg.Queues.QueryQueue(r.Context(), args[0])
	if err != nil {
		code, msg := errcodeFor(err)
		d.fail(w, "query_queue", start, http.StatusOK, code, msg)
		return
	}
	d.succeed(w, "query_queue", start, map[string]any{"exists": exists})
}
