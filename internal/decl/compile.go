package decl

import (
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Resource string
	Field    string
	Message  string
	Pos      token.Pos
}

func (e *CompileError) Error() string {
	where := e.Field
	if e.Resource != "" {
		where = e.Resource + "." + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// CompileResource parses one CUE resource struct into a ResourceSpec.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the resource struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`resources: bucket: { type: "object-store-bucket", attrs: {...} }`)
//	spec, err := CompileResource("bucket", v.LookupPath(cue.ParsePath("resources.bucket")))
func CompileResource(name string, v cue.Value) (*ResourceSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(name, err)
	}

	spec := &ResourceSpec{Name: name, Pos: v.Pos()}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{
			Resource: name,
			Field:    "type",
			Message:  "type is required",
			Pos:      v.Pos(),
		}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(name, err)
	}
	spec.Type = typeName

	attrsVal := v.LookupPath(cue.ParsePath("attrs"))
	if !attrsVal.Exists() {
		return nil, &CompileError{
			Resource: name,
			Field:    "attrs",
			Message:  "attrs is required",
			Pos:      v.Pos(),
		}
	}
	spec.Attrs, err = compileAttrs(name, attrsVal)
	if err != nil {
		return nil, err
	}

	protectVal := v.LookupPath(cue.ParsePath("protect"))
	if protectVal.Exists() {
		protect, err := protectVal.Bool()
		if err != nil {
			return nil, &CompileError{
				Resource: name,
				Field:    "protect",
				Message:  "protect must be a bool",
				Pos:      protectVal.Pos(),
			}
		}
		spec.Protect = protect
	}

	dependsVal := v.LookupPath(cue.ParsePath("depends_on"))
	if dependsVal.Exists() {
		iter, err := dependsVal.List()
		if err != nil {
			return nil, &CompileError{
				Resource: name,
				Field:    "depends_on",
				Message:  "depends_on must be a list of resource names",
				Pos:      dependsVal.Pos(),
			}
		}
		for iter.Next() {
			dep, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Resource: name,
					Field:    "depends_on",
					Message:  "depends_on entries must be strings",
					Pos:      iter.Value().Pos(),
				}
			}
			spec.DependsOn = append(spec.DependsOn, dep)
		}
	}

	return spec, nil
}

// compileAttrs converts the attrs struct into an attribute map.
func compileAttrs(resource string, v cue.Value) (attr.Map, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(resource, err)
	}

	attrs := make(attr.Map)
	for iter.Next() {
		val, err := compileValue(resource, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		attrs[iter.Label()] = val
	}
	return attrs, nil
}

// compileValue converts one CUE value to an attribute value.
// Floats are forbidden: they break deterministic diffs and hashes.
func compileValue(resource, field string, v cue.Value) (attr.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(resource, err)
		}
		return attr.String(s), nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(resource, err)
		}
		return attr.Int(n), nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(resource, err)
		}
		return attr.Bool(b), nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(resource, err)
		}
		var list attr.List
		i := 0
		for iter.Next() {
			elem, err := compileValue(resource, fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
			i++
		}
		if list == nil {
			list = attr.List{}
		}
		return list, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(resource, err)
		}
		m := make(attr.Map)
		for iter.Next() {
			elem, err := compileValue(resource, field+"."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			m[iter.Label()] = elem
		}
		return m, nil

	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Resource: resource,
			Field:    field,
			Message:  "float values are forbidden - use int instead",
			Pos:      v.Pos(),
		}

	case cue.NullKind:
		return nil, &CompileError{
			Resource: resource,
			Field:    field,
			Message:  "null values are forbidden",
			Pos:      v.Pos(),
		}

	default:
		return nil, &CompileError{
			Resource: resource,
			Field:    field,
			Message:  fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:      v.Pos(),
		}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(resource string, err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Resource: resource,
			Field:    "cue",
			Message:  firstErr.Error(),
			Pos:      positions[0],
		}
	}

	return err
}
