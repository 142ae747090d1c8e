// Package api holds the OpenAPI document for the StreetBlock HTTP surface.
package api

import _ "embed"

// OpenAPI is api/openapi.yaml as built into the binary.
//
//go:embed openapi.yaml
var OpenAPI []byte
