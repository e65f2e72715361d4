// Package ir implements the typed SSA intermediate representation: entity
// arenas, the type lattice, immediates, the data-flow graph (DFG), the
// per-function instruction/block layout, the control-flow graph and
// dominator tree, and the IR verifier.
//
// Every IR noun (Value, Instruction, BasicBlock, StackSlot, FuncRef, SigRef,
// DataRef, GlobalValue, JumpTable, Constant) is a 32-bit typed handle into a
// dense arena. Handles are not pointers: arenas own payloads, and cloning a
// handle never copies its payload.
package ir

import "fmt"

// idNone is the reserved sentinel meaning "no entity", shared by every
// entity id type below.
const idNone uint32 = 0xffff_ffff

// BasicBlockID identifies a BasicBlock in the DFG's block arena.
type BasicBlockID uint32

// Valid reports whether id refers to a real block.
func (id BasicBlockID) Valid() bool { return id != BasicBlockID(idNone) }

// String implements fmt.Stringer.
func (id BasicBlockID) String() string {
	if !id.Valid() {
		return "blk_invalid"
	}
	return fmt.Sprintf("blk%d", uint32(id))
}

// StackSlot identifies a function-local stack allocation.
type StackSlot uint32

// Valid reports whether id refers to a real stack slot.
func (id StackSlot) Valid() bool { return id != StackSlot(idNone) }

// FuncRef identifies a callee, resolved to a symbol or relocation at
// emission time. The core never resolves a FuncRef to an address itself.
type FuncRef uint32

// Valid reports whether id refers to a real function reference.
func (id FuncRef) Valid() bool { return id != FuncRef(idNone) }

// SigRef identifies a Signature owned by the DFG's signature arena.
type SigRef uint32

// Valid reports whether id refers to a real signature.
func (id SigRef) Valid() bool { return id != SigRef(idNone) }

// DataRef identifies a named blob of data external to the function (e.g. a
// global's backing storage), resolved by the linker/loader.
type DataRef uint32

// Valid reports whether id refers to a real data reference.
func (id DataRef) Valid() bool { return id != DataRef(idNone) }

// GlobalValue identifies a computed address (e.g. a vmctx-relative load)
// that is not itself an SSA Value but is referenced by one.
type GlobalValue uint32

// Valid reports whether id refers to a real global value.
func (id GlobalValue) Valid() bool { return id != GlobalValue(idNone) }

// JumpTable identifies the out-of-line successor list of a branch_table
// instruction.
type JumpTable uint32

// Valid reports whether id refers to a real jump table.
func (id JumpTable) Valid() bool { return id != JumpTable(idNone) }

// Constant identifies a pooled byte literal (used by vector constants and
// large immediates that don't fit inline).
type Constant uint32

// Valid reports whether id refers to a real pooled constant.
func (id Constant) Valid() bool { return id != Constant(idNone) }

// valueListID indexes into the DFG's out-of-line ValueList arena; it backs
// the variable-arity operand lists of multiary instructions (calls,
// branch_table targets' arguments, Vconst lanes, etc).
type valueListID uint32

const valueListIDNone = valueListID(idNone)
