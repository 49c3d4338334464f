package cdr

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// BuildType derives a Type descriptor from a Go struct value or pointer,
// using `cdr:"..."` struct tags, so callers can marshal an ordinary Go
// struct without hand-writing a Type the way
// original_source/tinq-core/dds/test/limits/userTypeSupport.c hand-wrote
// a CDR_TypeSupport_meta array.
//
// Tag grammar, comma-separated: "id=<uint>" (parameter id, for Mutable
// structs), "key" (marks the field as a key field), "mu" (must-understand,
// Mutable only). A bare "-" tag excludes the field. Extensibility is
// read from a type-level tag on an embedded `cdr.Ext` marker field, or
// defaults to Final.
//
// Panics on an unsupported Go type: this is a test/example convenience,
// not a general-purpose IDL compiler (spec.md explicitly leaves IDL
// compilation out of scope).
func BuildType(v any) *Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return typeCache.get(t)
}

// Ext embeds in a struct to declare its CDR extensibility, e.g.:
//
//	type Point struct {
//	    cdr.Ext `cdr:"mutable"`
//	    X, Y int32
//	}
type Ext struct{}

type typeMemo struct {
	mu sync.Mutex
	m  map[reflect.Type]*Type
}

var typeCache = &typeMemo{m: make(map[reflect.Type]*Type)}

func (c *typeMemo) get(t reflect.Type) *Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.m[t]; ok {
		return existing
	}
	ty := &Type{Kind: KindStruct, Name: t.Name()}
	c.m[t] = ty // pre-register to break recursive struct cycles
	buildStruct(t, ty)
	return ty
}

var extType = reflect.TypeOf(Ext{})

func buildStruct(t reflect.Type, out *Type) {
	var autoID uint32 = 1
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type == extType {
			out.Extensibility = parseExtTag(f.Tag.Get("cdr"))
			continue
		}
		tag := f.Tag.Get("cdr")
		if tag == "-" {
			continue
		}
		m := Member{Name: f.Name, ID: autoID}
		autoID++
		for _, part := range strings.Split(tag, ",") {
			part = strings.TrimSpace(part)
			switch {
			case part == "key":
				m.Key = true
			case part == "mu":
				m.MustUnderstand = true
			case strings.HasPrefix(part, "id="):
				if n, err := strconv.ParseUint(part[3:], 10, 32); err == nil {
					m.ID = uint32(n)
				}
			}
		}
		fillKind(f.Type, &m)
		out.Members = append(out.Members, m)
	}
}

func parseExtTag(tag string) Extensibility {
	for _, part := range strings.Split(tag, ",") {
		switch strings.TrimSpace(part) {
		case "mutable":
			return Mutable
		case "appendable":
			return Appendable
		case "final":
			return Final
		}
	}
	return Final
}

func fillKind(t reflect.Type, m *Member) {
	switch t.Kind() {
	case reflect.Bool:
		m.Kind = KindBool
	case reflect.Uint8:
		m.Kind = KindOctet
	case reflect.Int8:
		m.Kind = KindChar
	case reflect.Int16:
		m.Kind = KindShort
	case reflect.Uint16:
		m.Kind = KindUShort
	case reflect.Int32:
		m.Kind = KindLong
	case reflect.Uint32:
		m.Kind = KindULong
	case reflect.Int64, reflect.Int:
		m.Kind = KindLongLong
	case reflect.Uint64, reflect.Uint:
		m.Kind = KindULongLong
	case reflect.Float32:
		m.Kind = KindFloat
	case reflect.Float64:
		m.Kind = KindDouble
	case reflect.String:
		m.Kind = KindString
	case reflect.Struct:
		m.Kind = KindStruct
		m.Elem = typeCache.get(t)
	case reflect.Array:
		m.Kind = KindArray
		m.ArrayLen = t.Len()
		elem := Member{}
		fillKind(t.Elem(), &elem)
		m.Elem = &Type{Kind: elem.Kind, Elem: elem.Elem, ArrayLen: elem.ArrayLen}
	case reflect.Slice:
		m.Kind = KindSequence
		elem := Member{}
		fillKind(t.Elem(), &elem)
		m.Elem = &Type{Kind: elem.Kind, Elem: elem.Elem, ArrayLen: elem.ArrayLen}
	default:
		panic("cdr: unsupported field type: " + t.String())
	}
}
