// Package openapi embeds the service's API description.
package openapi

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
