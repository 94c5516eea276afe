package api

import (
	"fmt"
	"net/url"
	"strconv"

	"routeopt/internal/model"
)

type listQuery struct {
	Status model.RunStatus
	Cursor string
	Limit  int
}

func parseListQuery(q url.Values) (listQuery, error) {
	lq := listQuery{Cursor: q.Get("cursor")}
	if v := q.Get("status"); v != "" {
		st := model.RunStatus(v)
		switch st {
		case model.StatusQueued, model.StatusRunning, model.StatusSucceeded, model.StatusFailed, model.StatusCanceled:
			lq.Status = st
		default:
			return lq, fmt.Errorf("invalid status: %s", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return lq, fmt.Errorf("limit must be a non-negative integer")
		}
		lq.Limit = n
	}
	return lq, nil
}

func validateLinearRequest(req *model.LinearSolveRequest) error {
	n := len(req.A)
	if n == 0 {
		return fmt.Errorf("a must be a non-empty square matrix")
	}
	for i, row := range req.A {
		if len(row) != n {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), n)
		}
	}
	if len(req.B) != n {
		return fmt.Errorf("b has %d entries, want %d", len(req.B), n)
	}
	return nil
}
