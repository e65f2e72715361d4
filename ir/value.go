package ir

import "fmt"

// ValueID is the pure identity of a Value (the lower 32 bits of Value,
// without its type tag).
type ValueID uint32

const valueIDInvalid = ValueID(idNone)

// Value is an SSA value carrying its type alongside its identity: the
// bits 32-47 hold the packed Type, the lower 32 bits hold the ValueID.
// This mirrors wazero's "type baked into the handle" trick so that
// type_of(value) never needs an arena lookup on the hot lowering path.
type Value uint64

// ValueInvalid is the sentinel "no value".
const ValueInvalid Value = Value(valueIDInvalid)

// Valid reports whether v refers to a real value.
func (v Value) Valid() bool { return v.ID() != valueIDInvalid }

// ID returns the identity of v, independent of its type.
func (v Value) ID() ValueID { return ValueID(v) }

// Type returns the type tag packed into v.
func (v Value) Type() Type { return Type(v >> 32) }

// withType returns a copy of v with its type tag set to typ.
func (v Value) withType(typ Type) Value {
	return Value(uint64(v.ID())) | Value(typ)<<32
}

func valueWithType(id ValueID, typ Type) Value {
	return Value(uint64(id)) | Value(typ)<<32
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "v_invalid"
	}
	return fmt.Sprintf("v%d", uint32(v.ID()))
}

// valueDataKind discriminates the ValueData union.
type valueDataKind byte

const (
	valueDataInstResult valueDataKind = iota
	valueDataBlockParam
	valueDataAlias
)

// ValueData is the payload for an entry in the DFG's value arena: a Value
// is either the result of an instruction, a basic block parameter, or an
// alias to another (already-resolved-or-not) value. Alias chains form a
// DAG; DFG.ResolveValue walks to the non-alias root and compresses the
// path it walked.
type ValueData struct {
	kind valueDataKind

	// valid when kind == valueDataInstResult.
	inst Instruction
	idx  int

	// valid when kind == valueDataBlockParam.
	blk      BasicBlockID
	paramIdx int

	// valid when kind == valueDataAlias.
	aliasTo Value

	typ Type
}
