//go:build !dev_openapi

package api

import "routeopt/openapi"

func openAPILoad() ([]byte, error) { return openapi.Spec, nil }
