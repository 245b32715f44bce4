package ui

import (
	"fmt"
	"strings"

	"github.com/wippyai/clrmeta/metadata"
)

// TypeKind names the kind of a type definition.
func TypeKind(t *metadata.TypeDefinition) string {
	switch {
	case t.IsInterface():
		return "interface"
	case t.IsEnum():
		return "enum"
	case t.IsDelegate():
		return "delegate"
	case t.IsValueType():
		return "struct"
	default:
		return "class"
	}
}

// TypeLabel is the one-line summary of a type: visibility, kind, name and
// base class.
func TypeLabel(t *metadata.TypeDefinition) string {
	s := t.Visibility().String() + " " + TypeKind(t) + " " + t.FullName()
	if base := t.BaseClass(); base != nil && !t.IsEnum() && !t.IsValueType() {
		s += " : " + base.FullName()
	}
	return s
}

// FieldLabel renders a field with its type and compile time value.
func FieldLabel(f *metadata.FieldDefinition) string {
	s := fmt.Sprintf("%s %s : %s", modifiers(f.Visibility(), f.IsStatic()), f.Name(), typeName(f.Type()))
	if c, ok := f.CompileTimeValue(); ok {
		s += " = " + c.String()
	}
	return s
}

// MethodLabel renders a method as name(parameters) : return type.
func MethodLabel(d *metadata.MethodDefinition) string {
	sig := d.Signature()
	params := make([]string, len(sig.Parameters))
	for i, p := range sig.Parameters {
		params[i] = typeName(p)
	}
	name := d.Name()
	if gps := d.GenericParameters(); len(gps) > 0 {
		names := make([]string, len(gps))
		for i, gp := range gps {
			names[i] = gp.Name()
		}
		name += "<" + strings.Join(names, ", ") + ">"
	}
	return fmt.Sprintf("%s %s(%s) : %s", modifiers(d.Visibility(), d.IsStatic()), name, strings.Join(params, ", "), typeName(sig.ReturnType))
}

// PropertyLabel renders a property and its type.
func PropertyLabel(p *metadata.PropertyDefinition) string {
	return fmt.Sprintf("%s : %s", p.Name(), typeName(p.Type()))
}

// EventLabel renders an event and its handler type.
func EventLabel(e *metadata.EventDefinition) string {
	return fmt.Sprintf("%s : %s", e.Name(), typeName(e.Type()))
}

func modifiers(v metadata.Visibility, static bool) string {
	if static {
		return v.String() + " static"
	}
	return v.String()
}

func typeName(t metadata.TypeReference) string {
	if t == nil {
		return "?"
	}
	return t.FullName()
}
