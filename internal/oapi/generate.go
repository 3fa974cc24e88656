package oapi

// Types are used by tests to check that the health API JSON stays
// compatible with its document.
//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen -config cfg.yaml ../../pkg/healthapi/openapi.yaml
