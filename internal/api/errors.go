package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"routeopt/internal/geo"
	"routeopt/internal/geocode"
	"routeopt/internal/linsys"
	"routeopt/internal/opt"
	"routeopt/internal/runner"
	"routeopt/internal/store"
)

// writeError maps domain errors onto problem responses. Anything
// unrecognized is a 500 and gets logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var re *geocode.ResolveError
	switch {
	case errors.As(err, &re):
		writeJSON(w, http.StatusUnprocessableEntity, Problem{
			Type:       "about:blank",
			Title:      "Unresolved places",
			Status:     http.StatusUnprocessableEntity,
			Detail:     err.Error(),
			Instance:   r.URL.Path,
			Unresolved: re.Unresolved,
		})
	case errors.Is(err, runner.ErrInvalidRequest), errors.Is(err, geo.ErrUnknownProvider),
		errors.Is(err, geocode.ErrEmptyName), errors.Is(err, geocode.ErrDuplicate),
		errors.Is(err, linsys.ErrUnknownMethod), errors.Is(err, linsys.ErrDimension):
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
	case errors.Is(err, opt.ErrInsufficientPoints), errors.Is(err, opt.ErrDuplicatePoint),
		errors.Is(err, opt.ErrInvalidPoint), errors.Is(err, opt.ErrInvalidConfig):
		writeProblem(w, http.StatusUnprocessableEntity, "Cannot optimize", err.Error(), r.URL.Path)
	case errors.Is(err, opt.ErrDistanceProvider):
		writeProblem(w, http.StatusBadGateway, "Distance provider failed", err.Error(), r.URL.Path)
	case errors.Is(err, linsys.ErrZeroPivot), errors.Is(err, linsys.ErrSingular), errors.Is(err, linsys.ErrNaNInf):
		writeProblem(w, http.StatusUnprocessableEntity, "Cannot solve system", err.Error(), r.URL.Path)
	case errors.Is(err, geocode.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, runner.ErrNotRunning):
		writeProblem(w, http.StatusConflict, "Run not active", err.Error(), r.URL.Path)
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Run timed out", err.Error(), r.URL.Path)
	case errors.Is(err, context.Canceled):
		writeProblem(w, http.StatusConflict, "Run canceled", err.Error(), r.URL.Path)
	case errors.Is(err, runner.ErrShuttingDown):
		writeProblem(w, http.StatusServiceUnavailable, "Shutting down", err.Error(), r.URL.Path)
	default:
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), r.URL.Path)
	}
}
