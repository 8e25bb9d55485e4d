// Package validation checks request bodies against embedded JSON schemas
// before they reach the services.
package validation

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/terraconstructs/gatekeeper/internal/auth"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names, one per request body shape.
const (
	SchemaSignup               = "signup"
	SchemaLogin                = "login"
	SchemaRefreshToken         = "refresh_token"
	SchemaExternalAssertion    = "external_assertion"
	SchemaPasswordChange       = "password_change"
	SchemaPasswordReset        = "password_reset"
	SchemaPasswordResetConfirm = "password_reset_confirm"
	SchemaProfileUpdate        = "profile_update"
	SchemaRoleCreate           = "role_create"
	SchemaRolePermissions      = "role_permissions"
	SchemaUserCreate           = "user_create"
)

// ErrUnknownSchema is returned for a schema name with no embedded document.
var ErrUnknownSchema = errors.New("unknown schema")

const maxMessageLen = 200

// Validator validates request documents against named schemas.
type Validator interface {
	// Validate parses body as JSON and validates it against the named schema.
	// Malformed or non-conforming bodies fail with auth.ErrBadRequest.
	Validate(name string, body []byte) error

	// ValidateDocument validates an already decoded document, such as a
	// form converted to a map.
	ValidateDocument(name string, doc any) error
}

// SchemaValidator implements Validator using santhosh-tekuri/jsonschema/v6.
// Compiled schemas are immutable and kept in an LRU cache.
type SchemaValidator struct {
	schemaCache *lru.Cache[string, *jsonschema.Schema]
	mu          sync.Mutex
}

// NewSchemaValidator creates a new validator with LRU caching for compiled schemas
func NewSchemaValidator(cacheSize int) (*SchemaValidator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &SchemaValidator{schemaCache: cache}, nil
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(name string, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: request body is required", auth.ErrBadRequest)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", auth.ErrBadRequest, err)
	}
	return v.ValidateDocument(name, doc)
}

// ValidateDocument implements Validator.
func (v *SchemaValidator) ValidateDocument(name string, doc any) error {
	schema, err := v.schema(name)
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", auth.ErrBadRequest, formatValidationError(err))
	}
	return nil
}

// Preload compiles every embedded schema, surfacing broken documents at startup.
func (v *SchemaValidator) Preload() error {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, e := range entries {
		if _, err := v.schema(strings.TrimSuffix(e.Name(), ".json")); err != nil {
			return err
		}
	}
	return nil
}

func (v *SchemaValidator) schema(name string) (*jsonschema.Schema, error) {
	if cached, found := v.schemaCache.Get(name); found {
		return cached, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, found := v.schemaCache.Get(name); found {
		return cached, nil
	}
	schema, err := compileSchema(name)
	if err != nil {
		return nil, err
	}
	v.schemaCache.Add(name, schema)
	return schema, nil
}

// compileSchema compiles the embedded schema document called name.
func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	schemaURL := name + ".json"
	if err := compiler.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// formatValidationError renders a validation failure with its JSON path,
// e.g. "validation failed at '$.email': ...".
func formatValidationError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msg := ve.Error()
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}

	path := "$"
	var parts []string
	for _, part := range ve.InstanceLocation {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		path = "$." + strings.Join(parts, ".")
	}

	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "... (truncated)"
	}
	return fmt.Sprintf("validation failed at '%s': %s", path, msg)
}
