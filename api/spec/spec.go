package spec

import _ "embed"

// OpenAPI is the service description served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte
