package decl

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/provider"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateResource  = "E101" // duplicate logical name
	ErrInvalidName        = "E102" // logical name violates naming rules
	ErrUnknownType        = "E103" // type not in schema registry
	ErrMalformedReference = "E104" // ${...} that does not parse as a reference
	ErrUnknownAttribute   = "E105" // attribute not declared by the schema
	ErrMissingRequired    = "E106" // required attribute absent
	ErrKindMismatch       = "E107" // attribute value has the wrong kind
	ErrEnumViolation      = "E108" // string outside the schema's allowed set
)

// resourceNamePattern constrains logical names: lowercase start, then
// lowercase alphanumerics, underscore, or hyphen.
var resourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Resource string `json:"resource"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Code     string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Resource, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Resource, e.Message)
}

// Validate checks every resource spec against the schema registry.
// Returns all errors found (does not fail-fast). Cross-node checks
// (unresolved references, cycles) are the graph builder's job.
func Validate(d *Declaration, reg *provider.Registry) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]bool)
	for i := range d.Resources {
		spec := &d.Resources[i]

		// E101: duplicate logical name
		if seen[spec.Name] {
			errs = append(errs, ValidationError{
				Resource: spec.Name,
				Message:  fmt.Sprintf("duplicate resource name: %q", spec.Name),
				Code:     ErrDuplicateResource,
			})
		}
		seen[spec.Name] = true

		errs = append(errs, validateResource(spec, reg)...)
	}

	return errs
}

func validateResource(spec *ResourceSpec, reg *provider.Registry) []ValidationError {
	var errs []ValidationError

	// E102: naming rules
	if !resourceNamePattern.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Resource: spec.Name,
			Message:  "resource name must match ^[a-z][a-z0-9_-]*$",
			Code:     ErrInvalidName,
		})
	}

	// E103: type must be registered
	schema, ok := reg.Lookup(spec.Type)
	if !ok {
		errs = append(errs, ValidationError{
			Resource: spec.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unknown resource type %q (known: %v)", spec.Type, reg.Types()),
			Code:     ErrUnknownType,
		})
		// Without a schema the attribute checks below are meaningless.
		return errs
	}

	// E106: required attributes present
	for _, required := range schema.Required {
		if _, present := spec.Attrs[required]; !present {
			errs = append(errs, ValidationError{
				Resource: spec.Name,
				Field:    required,
				Message:  fmt.Sprintf("required attribute %q is missing", required),
				Code:     ErrMissingRequired,
			})
		}
	}

	for _, name := range spec.Attrs.SortedKeys() {
		value := spec.Attrs[name]

		// E105: attribute must be declared by the schema
		if !schema.KnownInput(name) {
			errs = append(errs, ValidationError{
				Resource: spec.Name,
				Field:    name,
				Message:  fmt.Sprintf("type %q has no attribute %q", spec.Type, name),
				Code:     ErrUnknownAttribute,
			})
			continue
		}

		errs = append(errs, validateAttrValue(spec, schema, name, value)...)
	}

	return errs
}

// validateAttrValue checks one attribute expression against its schema entry.
func validateAttrValue(spec *ResourceSpec, schema provider.Schema, name string, value attr.Value) []ValidationError {
	var errs []ValidationError

	wantKind := schema.Kinds[name]

	if s, isString := value.(attr.String); isString {
		if _, isRef := attr.ParseRef(string(s)); isRef {
			// A reference resolves to a provider output, which is always a
			// string. References where non-strings belong cannot typecheck.
			if wantKind != provider.KindString {
				errs = append(errs, ValidationError{
					Resource: spec.Name,
					Field:    name,
					Message:  fmt.Sprintf("reference %s resolves to a string, but %q expects %s", s, name, wantKind),
					Code:     ErrKindMismatch,
				})
			}
			return errs
		}

		// E104: looks like interpolation but is not a whole-string reference
		if attr.HasRefSyntax(string(s)) {
			errs = append(errs, ValidationError{
				Resource: spec.Name,
				Field:    name,
				Message:  fmt.Sprintf("malformed reference %q: references must be the whole string, e.g. \"${node.output}\"", s),
				Code:     ErrMalformedReference,
			})
			return errs
		}
	}

	// E107: kind check for literals
	if wantKind != "" && provider.KindOf(value) != wantKind {
		errs = append(errs, ValidationError{
			Resource: spec.Name,
			Field:    name,
			Message:  fmt.Sprintf("attribute %q expects %s, got %s", name, wantKind, provider.KindOf(value)),
			Code:     ErrKindMismatch,
		})
		return errs
	}

	// E108: enum membership for literal strings
	if allowed, restricted := schema.Enum[name]; restricted {
		if s, isString := value.(attr.String); isString && !slices.Contains(allowed, string(s)) {
			errs = append(errs, ValidationError{
				Resource: spec.Name,
				Field:    name,
				Message:  fmt.Sprintf("value %q not allowed; must be one of %v", s, allowed),
				Code:     ErrEnumViolation,
			})
		}
	}

	return errs
}
