//go:build dev_openapi

package api

import "os"

// openAPILoad reads openapi.yaml from the repo path so edits show up without a
// rebuild.
func openAPILoad() ([]byte, error) { return os.ReadFile("openapi/openapi.yaml") }
