package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/queue"
)

// Cluster RPC: followers call the leader's registry over these endpoints.
// The wire shapes are internal; a follower that races a leadership change
// sees 409 and retries against the new leader.

type deregisterRequest struct {
	Name string `json:"name"`
	Node string `json:"node"`
}

type rpcError struct {
	Error string `json:"error"`
}

// ClusterRegister serves POST /cluster/queues/register.
func (d *Dispatcher) ClusterRegister(w http.ResponseWriter, r *http.Request) {
	if d.cfg.Queues == nil {
		writeRPCError(w, http.StatusServiceUnavailable, "queue registry disabled")
		return
	}
	var e queue.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeRPCError(w, http.StatusBadRequest, "malformed entry")
		return
	}
	if err := d.cfg.Queues.HandleRegister(e); err != nil {
		writeQueueRPCFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClusterDeregister serves POST /cluster/queues/deregister.
func (d *Dispatcher) ClusterDeregister(w http.ResponseWriter, r *http.Request) {
	if d.cfg.Queues == nil {
		writeRPCError(w, http.StatusServiceUnavailable, "queue registry disabled")
		return
	}
	var req deregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if err := d.cfg.Queues.HandleDeregister(req.Name, req.Node); err != nil {
		writeQueueRPCFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClusterLookup serves GET /cluster/queues/{name}.
func (d *Dispatcher) ClusterLookup(w http.ResponseWriter, r *http.Request) {
	if d.cfg.Queues == nil {
		writeRPCError(w, http.StatusServiceUnavailable, "queue registry disabled")
		return
	}
	entry, ok, err := d.cfg.Queues.HandleLookup(chi.URLParam(r, "name"))
	if err != nil {
		writeQueueRPCFailure(w, err)
		return
	}
	if !ok {
		writeRPCError(w, http.StatusNotFound, "queue not registered")
		return
	}
	writeRPCJSON(w, entry)
}

// ClusterList serves GET /cluster/queues.
func (d *Dispatcher) ClusterList(w http.ResponseWriter, r *http.Request) {
	if d.cfg.Queues == nil {
		writeRPCError(w, http.StatusServiceUnavailable, "queue registry disabled")
		return
	}
	entries, err := d.cfg.Queues.HandleList()
	if err != nil {
		writeQueueRPCFailure(w, err)
		return
	}
	writeRPCJSON(w, entries)
}

func writeQueueRPCFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, queue.ErrNotLeader) {
		writeRPCError(w, http.StatusConflict, "not leader")
		return
	}
	logger.Error("cluster queue rpc failed", logger.Err(err))
	writeRPCError(w, http.StatusInternalServerError, "internal error")
}

func writeRPCError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcError{Error: msg})
}

func writeRPCJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
