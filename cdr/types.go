// Package cdr implements the CDR / Extended-CDR wire codec described in
// spec.md §4.F: marshalling, unmarshalling, key extraction and
// field-offset computation for FINAL, APPENDABLE and MUTABLE
// (parameter-list) encodings, plus a dynamic Type/DynData tree for
// payloads whose shape isn't known at compile time.
//
// Static descriptors (Type values) can be built by hand, the way
// original_source/tinq-core/dds/test/limits/userTypeSupport.c builds a
// TypeSupport_meta array, or derived from a tagged Go struct via
// BuildType — a reflection helper that exists purely so this package has
// something convenient to marshal in tests and examples.
package cdr

// Kind identifies the wire representation of one Type or Member.
type Kind int

const (
	KindBool Kind = iota
	KindOctet
	KindChar
	KindShort
	KindUShort
	KindLong
	KindULong
	KindLongLong
	KindULongLong
	KindFloat
	KindDouble
	KindString
	KindStruct
	KindArray
	KindSequence
	KindEnum
)

// Extensibility selects the wire treatment of a KindStruct Type, per
// spec.md §4.F: FINAL and APPENDABLE share a wire format in this codec;
// MUTABLE uses PID-tagged parameter-list encoding.
type Extensibility int

const (
	Final Extensibility = iota
	Appendable
	Mutable
)

// Member describes one field of a KindStruct Type.
type Member struct {
	Name           string
	ID             uint32 // parameter id, meaningful only for Mutable structs
	Kind           Kind
	Key            bool
	MustUnderstand bool
	Elem           *Type // element type for KindArray/KindSequence, member type for KindStruct fields
	ArrayLen       int   // fixed length for KindArray; 0 (unbounded) for KindSequence
	Bound          int   // declared maximum length for a bounded KindString key field; 0 = unbounded
}

// Type is a static type descriptor, the Go-native stand-in for the
// original's CDR_TypeSupport / CDR_TypeSupport_container tables.
type Type struct {
	Kind          Kind
	Name          string
	Extensibility Extensibility
	Members       []Member // populated for KindStruct
	Elem          *Type    // populated for KindArray/KindSequence at top level (rarely used; Member.Elem is the common path)
	ArrayLen      int
}

// fixedSize returns the wire size of a scalar Kind, or 0 for variable-
// length / aggregate kinds.
func fixedSize(k Kind) (size int, align int) {
	switch k {
	case KindBool, KindOctet, KindChar:
		return 1, 1
	case KindShort, KindUShort:
		return 2, 2
	case KindLong, KindULong, KindFloat, KindEnum:
		return 4, 4
	case KindLongLong, KindULongLong, KindDouble:
		return 8, 8
	default:
		return 0, 1
	}
}
