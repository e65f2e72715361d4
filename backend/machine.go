package backend

import (
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// Machine is the per-ISA backend a Compiler drives: it owns the target's
// instruction set, register file, ABI, and encoder. Grounded on
// backend/machine.go, stripped of wazero's WebAssembly-runtime-only
// surface (Go-function trampolines, stack-grow call sequences, module
// context pointers) since none of those concern a general-purpose
// retargetable code generator; what's left is the lowering/regalloc/encode
// contract every ISA implements identically.
type Machine interface {
	// SetCompiler binds the lowering context this Machine lowers into. Called
	// once per Machine before the first Compile.
	SetCompiler(Compiler)

	// SetCurrentABI prepares the Machine for a function with the given
	// signature's calling convention.
	SetCurrentABI(abi *FunctionABI[RegInfo])

	// StartFunction is called once per function, before its first block is
	// lowered.
	StartFunction()
	// StartBlock is called when lowering of blk begins.
	StartBlock(blk ir.BasicBlockID)
	// EndBlock is called when lowering of the current block finishes.
	EndBlock()
	// EndFunction is called once lowering of every block is complete.
	EndFunction()

	// LowerInstr lowers one non-branch instruction. Called in reverse
	// program order within a block, skipping any instruction the Compiler
	// has already marked lowered (fused into an earlier LowerInstr call).
	LowerInstr(inst ir.Instruction)
	// LowerSingleBranch lowers a block's unconditional terminator (jump,
	// return, trap, tail call).
	LowerSingleBranch(term ir.Instruction)
	// LowerConditionalBranch lowers a block ending in a conditional branch
	// (cond) immediately followed by a fallthrough-eliminating jump (term),
	// fused into one call so the ISA can pick the cheapest encoding for the
	// pair (e.g. a single conditional-branch-with-fallthrough).
	LowerConditionalBranch(cond, term ir.Instruction)

	// InsertMove emits a register-to-register move of typ from src to dst.
	InsertMove(dst, src regalloc.VReg, typ ir.Type)
	// InsertLoadConstant emits the instruction(s) materializing the
	// constant defined by inst into vr.
	InsertLoadConstant(inst ir.Instruction, vr regalloc.VReg)
	// InsertReturn emits the function's return sequence.
	InsertReturn()

	// RegisterInfo returns the static register description backing this
	// Machine's register allocation.
	RegisterInfo() *regalloc.RegisterInfo
	// ABIRegInfo returns the argument/result register assignment order
	// this Machine's calling convention uses, for Compiler.FunctionABI to
	// build a FunctionABI against.
	ABIRegInfo() RegInfo
	// RegAlloc runs register allocation over the lowered function.
	RegAlloc()
	// PostRegAlloc runs passes that depend on the final register
	// assignment; every Machine here inserts only the prologue/epilogue
	// and does no redundant-move elision.
	PostRegAlloc()

	// Encode appends the final machine code for this function to buf,
	// resolving local labels and recording relocations/traps/constant-pool
	// references as it goes.
	Encode(buf *mcode.Buffer) error

	// Format renders the currently lowered/allocated code for debugging
	// and golden-output tests.
	Format() string

	// FrameSize returns the current function's final stack frame size in
	// bytes, valid after PostRegAlloc. Callers use it to enforce a stack
	// budget and to populate Result.FrameSize.
	FrameSize() int64

	// Reset discards all per-function state so the Machine can be reused
	// for the next function.
	Reset()
}
