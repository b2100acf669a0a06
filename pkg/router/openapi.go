package router

import (
	"errors"
	"os"
	"path/filepath"

	"quacker/backend/pkg/validator"
)

// AddOpenAPIValidation validates incoming requests against the schema at
// schemaPath and serves the schema under /api/docs. A missing or broken
// schema is logged and skipped.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if !fileExists(schemaPath) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "failed to initialize OpenAPI validator", "path", schemaPath)
		return
	}

	r.schema = v
	r.Engine.Use(v.Middleware())
	r.Engine.StaticFile("/api/docs/"+filepath.Base(schemaPath), schemaPath)
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)
}

// ReloadSchema re-reads the OpenAPI schema. On error the previous schema
// stays in force.
func (r *Router) ReloadSchema() error {
	if r.schema == nil {
		return errors.New("OpenAPI validation is not enabled")
	}
	if err := r.schema.ReloadSchema(); err != nil {
		return err
	}
	r.Logger.Info("OpenAPI schema reloaded")
	return nil
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
