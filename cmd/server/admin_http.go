package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"repairworks.ai/internal/sim/world"
)

type adminWorld interface {
	ID() string
	CurrentTick() uint64
	Metrics() world.WorldMetrics
	RequestAdmin(ctx context.Context, op world.AdminOp) (world.AdminResult, error)
	RequestSnapshot(ctx context.Context) (uint64, error)
}

// registerAdminHandlers mounts loopback-only operator endpoints. State changes
// go through the world's admin queue and land in the tick log.
func registerAdminHandlers(mux *http.ServeMux, w adminWorld, idx repairHistoryIndex) {
	mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		writeJSONResponse(rw, http.StatusOK, struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		})
	}))
	mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := w.RequestSnapshot(ctx)
		if err != nil {
			writeJSONResponse(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		writeJSONResponse(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
	}))
	mux.HandleFunc("/admin/v1/buildings", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Type  string `json:"type"`
			Owner string `json:"owner"`
			HP    int    `json:"hp"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&body); err != nil {
			http.Error(rw, "bad json", http.StatusBadRequest)
			return
		}
		applyAdmin(rw, r, w, world.AdminOp{Kind: world.AdminSpawnBuilding, Type: body.Type, Owner: body.Owner, Amount: body.HP})
	}))
	mux.HandleFunc("/admin/v1/damage", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Target string `json:"target"`
			Amount int    `json:"amount"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&body); err != nil {
			http.Error(rw, "bad json", http.StatusBadRequest)
			return
		}
		applyAdmin(rw, r, w, world.AdminOp{Kind: world.AdminDamage, Target: body.Target, Amount: body.Amount})
	}))
	mux.HandleFunc("/admin/v1/repairs", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(rw, "index unavailable", http.StatusNotImplemented)
			return
		}
		q := r.URL.Query()
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if agent := strings.TrimSpace(q.Get("agent")); agent != "" {
			total, err := idx.TotalCharged(ctx, agent)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSONResponse(rw, http.StatusOK, map[string]any{"agent_id": agent, "charged_total": total})
			return
		}
		building := strings.TrimSpace(q.Get("building"))
		if building == "" {
			http.Error(rw, "building or agent required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		rows, err := idx.RepairHistory(ctx, building, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSONResponse(rw, http.StatusOK, map[string]any{"building_id": building, "cycles": rows})
	}))
}

func applyAdmin(rw http.ResponseWriter, r *http.Request, w adminWorld, op world.AdminOp) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	res, err := w.RequestAdmin(ctx, op)
	if err != nil {
		status := http.StatusBadRequest
		if ctx.Err() != nil {
			status = http.StatusServiceUnavailable
		}
		writeJSONResponse(rw, status, map[string]any{"ok": false, "tick": res.Tick, "error": err.Error()})
		return
	}
	writeJSONResponse(rw, http.StatusOK, map[string]any{"ok": true, "result": res})
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSONResponse(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
