package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"routeopt/internal/geo"
	"routeopt/internal/geocode"
	"routeopt/internal/linsys"
	"routeopt/internal/model"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := principal(r)
	if !p.CanRun() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	run, err := s.Runner.Run(r.Context(), p.Tenant, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunsHandler handles POST/GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.CanRun() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var req model.OptimizeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		run, err := s.Runner.Submit(r.Context(), p.Tenant, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, run)
	case http.MethodGet:
		q, err := parseListQuery(r.URL.Query())
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
			return
		}
		items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, q.Status, q.Cursor, q.Limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if items == nil {
			items = []model.Run{}
		}
		writeJSON(w, http.StatusOK, model.RunPage{Items: items, NextCursor: next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RunByIDHandler handles GET/DELETE /v1/runs/{id} plus the /geojson,
// /events/stream and /ws subresources.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/runs/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	id, sub := parts[0], strings.Join(parts[1:], "/")
	p := principal(r)

	switch sub {
	case "":
	case "geojson":
		s.runGeoJSON(w, r, p, id)
		return
	case "events/stream":
		s.runEventStream(w, r, p, id)
		return
	case "ws":
		s.RunWSHandler(w, r, p, id)
		return
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
		return
	}

	switch r.Method {
	case http.MethodGet:
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case http.MethodDelete:
		if !p.CanRun() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", path)
			return
		}
		run, err := s.Runner.Cancel(r.Context(), p.Tenant, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, run)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) runGeoJSON(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if run.Result == nil {
		writeProblem(w, http.StatusConflict, "No route yet", fmt.Sprintf("run is %s", run.Status), r.URL.Path)
		return
	}
	fc := geo.RouteFeatureCollection(run.Points, run.Result.Route)
	b, err := fc.MarshalJSON()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(b)
}

// runEventStream serves run progress as server-sent events until the run
// finishes or the client goes away.
func (s *Server) runEventStream(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before the snapshot so a run finishing in between is seen
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writeSSE(w, "run.snapshot", run)
	flusher.Flush()
	if run.Status.Terminal() {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, eventData(evt))
			flusher.Flush()
			if evt.Type != model.EventRunProgress {
				return
			}
		case <-heartbeat.C:
			// the broker may have dropped the final event for a slow reader
			if run, done := s.finishedRun(r.Context(), p.Tenant, id); done {
				writeSSE(w, "run.snapshot", run)
				flusher.Flush()
				return
			}
			writeSSE(w, "heartbeat", map[string]string{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

// finishedRun reports whether the run has reached a terminal state.
func (s *Server) finishedRun(ctx context.Context, tenant, id string) (model.Run, bool) {
	run, err := s.Store.GetRun(ctx, tenant, id)
	if err != nil {
		return model.Run{}, false
	}
	return run, run.Status.Terminal()
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

// eventData is the payload clients see for a broker event.
func eventData(evt model.RunEvent) any {
	if evt.Progress != nil {
		return evt.Progress
	}
	return evt.Run
}

// OptimizerConfigHandler returns the effective optimizer configuration
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	settings, err := s.Runner.Settings(r.Context(), principal(r).Tenant)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// AdminOptimizerConfigHandler gets or replaces the tenant's overrides.
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		settings, err := s.Runner.Settings(r.Context(), p.Tenant)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var body struct {
			Config *model.ConfigOverrides `json:"config"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		settings, err := s.Runner.SaveSettings(r.Context(), p.Tenant, body.Config)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// GeocodeHandler handles POST /v1/geocode
func (s *Server) GeocodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Geocoder == nil {
		writeProblem(w, http.StatusNotImplemented, "Geocoding unavailable", "no gazetteer configured", r.URL.Path)
		return
	}
	var req model.GeocodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.Places) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "places are required", r.URL.Path)
		return
	}
	points, err := geocode.Resolve(r.Context(), s.Geocoder, req.Places)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.GeocodeResponse{Points: points})
}

// LinearSolveHandler handles POST /v1/linear/solve
func (s *Server) LinearSolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.LinearSolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateLinearRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid linear system", err.Error(), r.URL.Path)
		return
	}
	x, err := linsys.Solve(req.Method, req.A, req.B)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = linsys.MethodGaussJordan
	}
	writeJSON(w, http.StatusOK, model.LinearSolveResponse{Method: method, X: x})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the store and every extra dependency.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{}
	ok := true
	if err := s.Store.Ping(ctx); err != nil {
		checks["store"], ok = err.Error(), false
	} else {
		checks["store"] = "ok"
	}
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			checks[name], ok = err.Error(), false
			continue
		}
		checks[name] = "ok"
	}
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}
