// Package api implements HTTP handlers and helpers for the routeopt service.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"routeopt/internal/auth"
)

const (
	RoleAdmin   = "admin"
	RolePlanner = "planner"
	RoleViewer  = "viewer"
)

var errUnauthenticated = errors.New("missing bearer token")

type Principal struct {
	Tenant string
	Role   string // admin, planner, viewer
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanRun reports whether the principal may start or cancel runs.
func (p Principal) CanRun() bool { return p.Role == RoleAdmin || p.Role == RolePlanner }

// getPrincipal extracts tenant and role from the bearer token.
// Without a token, dev mode falls back to the X-Tenant-Id and X-Role
// headers; any other mode rejects the request.
func (s *Server) getPrincipal(r *http.Request) (Principal, error) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		if err != nil {
			return Principal{}, err
		}
		role := pr.Role
		if role == "" {
			role = RoleViewer
		}
		return Principal{Tenant: pr.Tenant, Role: role}, nil
	}
	if s.Auth.Mode != auth.ModeDev {
		return Principal{}, errUnauthenticated
	}
	tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = RoleAdmin
	}
	return Principal{Tenant: tenant, Role: role}, nil
}

type ctxKeyPrincipal struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

// principal returns the caller set by authMiddleware.
func principal(r *http.Request) Principal {
	p, _ := r.Context().Value(ctxKeyPrincipal{}).(Principal)
	return p
}

// public paths skip authentication and rate limiting.
func public(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/openapi.yaml", "/openapi.json", "/docs", "/swagger":
		return true
	}
	return false
}
