package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dbfleet/dbfleet/internal/alarm"
	"github.com/dbfleet/dbfleet/internal/store"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// maxBodyBytes bounds PUT bodies.
const maxBodyBytes = 64 << 10

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads the published snapshot from the store and alarm state from the
// registry.
type Handler struct {
	store    *store.Store
	registry *alarm.Registry
	notifier *alarm.Notifier
	now      func() time.Time
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes. notifier may be nil, in
// which case /api/v1/alerts is always empty.
func New(st *store.Store, reg *alarm.Registry, n *alarm.Notifier) *Handler {
	h := &Handler{store: st, registry: reg, notifier: n, now: time.Now, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/engines/", h.getEngine) // subtree, extracts {engine}
	h.mux.HandleFunc("/api/v1/sources", h.sources)
	h.mux.HandleFunc("/api/v1/alarms", h.listAlarms)
	h.mux.HandleFunc("/api/v1/alarms/", h.alarm) // subtree, extracts {key}
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// BuildSnapshot assembles the snapshot payload from the latest published
// snapshot, evaluating suppression at now.
func BuildSnapshot(st *store.Store, reg *alarm.Registry, now time.Time) SnapshotResponse {
	snap := st.Snapshot()
	nodes := snap.Nodes()
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key()
	}

	suppressed := make(map[string]bool, len(keys))
	if reg != nil {
		suppressed = reg.SuppressedSet(keys, now)
	} else {
		for _, k := range keys {
			suppressed[k] = false
		}
	}

	engines := snap.Engines
	if engines == nil {
		engines = []types.EngineSnapshot{}
	}
	return SnapshotResponse{
		GeneratedAt:   snap.GeneratedAt,
		CriticalCount: snap.Counts.Critical,
		WarningCount:  snap.Counts.Warning,
		HealthyCount:  snap.Counts.Healthy,
		ClusterCounts: snap.ClusterCounts,
		Engines:       engines,
		Suppressed:    suppressed,
	}
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health, the fleet at a glance.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := BuildSnapshot(h.store, h.registry, h.now())
	out := HealthResponse{
		State:            "unknown",
		SourceCount:      len(h.store.List()),
		NodeCount:        resp.CriticalCount + resp.WarningCount + resp.HealthyCount,
		ClusterCount:     resp.ClusterCounts.Total(),
		CriticalCount:    resp.CriticalCount,
		WarningCount:     resp.WarningCount,
		HealthyCount:     resp.HealthyCount,
		CriticalClusters: resp.ClusterCounts.Critical,
		StaleEngines:     []string{},
		GeneratedAt:      resp.GeneratedAt,
	}
	switch {
	case out.CriticalCount > 0:
		out.State = types.StatusCritical.String()
	case out.WarningCount > 0:
		out.State = types.StatusWarning.String()
	case out.HealthyCount > 0:
		out.State = types.StatusHealthy.String()
	}
	for _, muted := range resp.Suppressed {
		if muted {
			out.SuppressedCount++
		}
	}
	for _, es := range resp.Engines {
		if es.Stale || es.Degraded {
			out.StaleEngines = append(out.StaleEngines, string(es.Engine))
		}
	}
	if h.notifier != nil {
		out.AlertCount = h.notifier.Firing()
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.registry, h.now()))
}

// getEngine returns GET /api/v1/engines/{engine}.
func (h *Handler) getEngine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/engines/"), "/")
	e, err := types.ParseEngine(name)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	es, ok := h.store.Snapshot().Engine(e)
	if !ok {
		jsonErr(w, http.StatusNotFound, "engine has no sources")
		return
	}
	jsonResp(w, http.StatusOK, es)
}

// sources returns GET /api/v1/sources, every source with its poll status.
func (h *Handler) sources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results := h.store.List()
	out := make([]SourceResponse, 0, len(results))
	for _, res := range results {
		e, _ := h.store.Get(res.SourceID)
		n := len(res.Nodes)
		res.Nodes = nil
		out = append(out, SourceResponse{
			SourceResult: res,
			NodeCount:    n,
			UpdatedAt:    e.UpdatedAt,
			Diagnostics:  computeDiagnostics(res),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// listAlarms returns GET /api/v1/alarms.
func (h *Handler) listAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.registry.List(h.now())
	out := make([]AlarmResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAlarmResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// alarm serves GET and PUT /api/v1/alarms/{key}.
func (h *Handler) alarm(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	if key == "" {
		h.listAlarms(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		now := h.now()
		st, ok := h.registry.Get(key)
		if !ok {
			jsonErr(w, http.StatusNotFound, "unknown node key")
			return
		}
		jsonResp(w, http.StatusOK, toAlarmResponse(alarm.Entry{
			Key:        key,
			Suppressed: alarm.IsSuppressed(st, now),
			AlarmState: st,
		}))

	case http.MethodPut:
		h.setAlarm(w, r, key)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) setAlarm(w http.ResponseWriter, r *http.Request, key string) {
	var req AlarmRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	now := h.now()
	until, err := silenceDeadline(req, now)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.registry.Set(r.Context(), key, *req.AlertEnabled, until)
	switch {
	case errors.Is(err, alarm.ErrUnknownKey):
		jsonErr(w, http.StatusNotFound, "unknown node key")
		return
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	jsonResp(w, http.StatusOK, toAlarmResponse(alarm.Entry{
		Key:        key,
		Suppressed: alarm.IsSuppressed(st, now),
		AlarmState: st,
	}))
}

// alerts returns GET /api/v1/alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.notifier == nil {
		jsonResp(w, http.StatusOK, []alarm.Alarm{})
		return
	}
	jsonResp(w, http.StatusOK, h.notifier.Active())
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// silenceDeadline validates req and returns the silence deadline to store.
// Enabling alerts never carries a deadline.
func silenceDeadline(req AlarmRequest, now time.Time) (*time.Time, error) {
	if req.AlertEnabled == nil {
		return nil, errors.New("alert_enabled is required")
	}
	if *req.AlertEnabled {
		return nil, nil
	}
	if req.SilenceUntil != nil && req.SilenceFor != "" {
		return nil, errors.New("silence_until and silence_for are mutually exclusive")
	}
	if req.SilenceFor != "" {
		d, err := time.ParseDuration(req.SilenceFor)
		if err != nil {
			return nil, fmt.Errorf("silence_for: %w", err)
		}
		if d <= 0 {
			return nil, errors.New("silence_for must be positive")
		}
		until := now.Add(d).UTC()
		return &until, nil
	}
	if req.SilenceUntil != nil {
		if !req.SilenceUntil.After(now) {
			return nil, errors.New("silence_until must be in the future")
		}
		until := req.SilenceUntil.UTC()
		return &until, nil
	}
	return nil, nil
}

func toAlarmResponse(e alarm.Entry) AlarmResponse {
	return AlarmResponse{
		Key:          e.Key,
		AlertEnabled: e.AlertEnabled,
		SilenceUntil: e.SilenceUntil,
		Suppressed:   e.Suppressed,
		UpdatedAt:    e.UpdatedAt,
	}
}
