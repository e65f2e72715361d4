package ir

import (
	"fmt"
	"strings"
)

// Instruction identifies an instruction in the DFG's instruction arena. It
// is a handle, not a pointer: the arena in DFG owns the InstructionData
// payload, and the Layout (not the arena) owns program order.
type Instruction uint32

// InstructionInvalid is the sentinel "no instruction".
const InstructionInvalid = Instruction(idNone)

// Valid reports whether id refers to a real instruction.
func (id Instruction) Valid() bool { return id != InstructionInvalid }

// String implements fmt.Stringer.
func (id Instruction) String() string {
	if !id.Valid() {
		return "inst_invalid"
	}
	return fmt.Sprintf("inst%d", uint32(id))
}

// Opcode identifies the operation an instruction performs. The opcode also
// selects which fields of InstructionData are meaningful (its "family"):
// nullary, unary, binary, ternary, branch, call, call_indirect, load,
// store, stack_load, stack_store, branch_table, or multiary (out-of-line
// ValueList operands).
type Opcode uint32

const (
	OpcodeInvalid Opcode = iota

	// --- control flow (branch family, terminators) ---
	OpcodeJump     // unconditional jump to a block, with block-param arguments.
	OpcodeBrz      // branch to one of two successors if v == 0, else fall through.
	OpcodeBrnz     // branch to one of two successors if v != 0, else fall through.
	OpcodeBrTable  // indexed branch-table with a default target.
	OpcodeReturn   // return from the function with the given values.
	OpcodeReturnCall        // tail call: no successor, callee inherits frame.
	OpcodeReturnCallIndirect
	OpcodeTrap     // unconditional trap with a trap code.

	// --- calls (call family) ---
	OpcodeCall
	OpcodeCallIndirect

	// --- constants (nullary family, plus inline immediate) ---
	OpcodeIconst
	OpcodeF32const
	OpcodeF64const
	OpcodeVconst

	// --- memory (load/store families) ---
	OpcodeLoad
	OpcodeStore
	OpcodeUload8
	OpcodeSload8
	OpcodeIstore8
	OpcodeUload16
	OpcodeSload16
	OpcodeIstore16
	OpcodeUload32
	OpcodeSload32
	OpcodeIstore32
	OpcodeStackLoad
	OpcodeStackStore

	// --- integer arithmetic (binary family) ---
	OpcodeIadd
	OpcodeIsub
	OpcodeImul
	OpcodeUdiv
	OpcodeSdiv
	OpcodeUrem
	OpcodeSrem
	OpcodeBand
	OpcodeBor
	OpcodeBxor
	OpcodeIshl
	OpcodeUshr
	OpcodeSshr
	OpcodeRotl
	OpcodeRotr

	// --- integer unary (unary family) ---
	OpcodeIneg
	OpcodeBnot
	OpcodeClz
	OpcodeCtz
	OpcodePopcnt
	OpcodeIextend // sign/zero-extend narrow to wide int; u1 encodes signedness, typ is the result type.
	OpcodeIreduce // truncate wide int to narrow int.
	OpcodeIcast   // bitcast between same-size int/float.

	// --- float arithmetic ---
	OpcodeFadd
	OpcodeFsub
	OpcodeFmul
	OpcodeFdiv
	OpcodeFneg
	OpcodeFabs
	OpcodeFmin
	OpcodeFmax
	OpcodeFcopysign
	OpcodeSqrt
	OpcodeCeil
	OpcodeFloor
	OpcodeTrunc
	OpcodeNearest
	OpcodeFpromote
	OpcodeFdemote
	OpcodeFcvtToSint
	OpcodeFcvtToUint
	OpcodeFcvtFromSint
	OpcodeFcvtFromUint

	// --- comparisons (binary family, result type flags/iflags) ---
	OpcodeIcmp    // integer comparison; u1 encodes the IntCC predicate.
	OpcodeIcmpImm // integer comparison against an inline immediate.
	OpcodeFcmp    // float comparison; u1 encodes the FloatCC predicate.

	// --- SSA plumbing ---
	OpcodeSelect // v1 ? v2 : v3, no branching.

	// --- vector (ternary/binary family with lane metadata in u1) ---
	OpcodeVIadd
	OpcodeVIsub
	OpcodeVImul
	OpcodeVFadd
	OpcodeVFsub
	OpcodeVFmul
	OpcodeVFdiv
	OpcodeSplat
	OpcodeExtractlane
	OpcodeInsertlane

	opcodeMax
)

// opcodeNames names every opcode; any other Opcode value formats as
// "op<N>" via Opcode.String's fallback.
var opcodeNames = map[Opcode]string{
	OpcodeInvalid: "invalid", OpcodeJump: "jump", OpcodeBrz: "brz", OpcodeBrnz: "brnz",
	OpcodeBrTable: "br_table", OpcodeReturn: "return", OpcodeReturnCall: "return_call",
	OpcodeReturnCallIndirect: "return_call_indirect", OpcodeTrap: "trap",
	OpcodeCall: "call", OpcodeCallIndirect: "call_indirect",
	OpcodeIconst: "iconst", OpcodeF32const: "f32const", OpcodeF64const: "f64const", OpcodeVconst: "vconst",
	OpcodeLoad: "load", OpcodeStore: "store",
	OpcodeUload8: "uload8", OpcodeSload8: "sload8", OpcodeIstore8: "istore8",
	OpcodeUload16: "uload16", OpcodeSload16: "sload16", OpcodeIstore16: "istore16",
	OpcodeUload32: "uload32", OpcodeSload32: "sload32", OpcodeIstore32: "istore32",
	OpcodeStackLoad: "stack_load", OpcodeStackStore: "stack_store",
	OpcodeIadd: "iadd", OpcodeIsub: "isub", OpcodeImul: "imul",
	OpcodeUdiv: "udiv", OpcodeSdiv: "sdiv", OpcodeUrem: "urem", OpcodeSrem: "srem",
	OpcodeBand: "band", OpcodeBor: "bor", OpcodeBxor: "bxor",
	OpcodeIshl: "ishl", OpcodeUshr: "ushr", OpcodeSshr: "sshr",
	OpcodeRotl: "rotl", OpcodeRotr: "rotr",
	OpcodeIneg: "ineg", OpcodeBnot: "bnot", OpcodeClz: "clz", OpcodeCtz: "ctz", OpcodePopcnt: "popcnt",
	OpcodeIextend: "iextend", OpcodeIreduce: "ireduce", OpcodeIcast: "icast",
	OpcodeFadd: "fadd", OpcodeFsub: "fsub", OpcodeFmul: "fmul", OpcodeFdiv: "fdiv",
	OpcodeFneg: "fneg", OpcodeFabs: "fabs", OpcodeFmin: "fmin", OpcodeFmax: "fmax", OpcodeFcopysign: "fcopysign",
	OpcodeSqrt: "sqrt", OpcodeCeil: "ceil", OpcodeFloor: "floor", OpcodeTrunc: "trunc", OpcodeNearest: "nearest",
	OpcodeFpromote: "fpromote", OpcodeFdemote: "fdemote",
	OpcodeFcvtToSint: "fcvt_to_sint", OpcodeFcvtToUint: "fcvt_to_uint",
	OpcodeFcvtFromSint: "fcvt_from_sint", OpcodeFcvtFromUint: "fcvt_from_uint",
	OpcodeIcmp: "icmp", OpcodeIcmpImm: "icmp_imm", OpcodeFcmp: "fcmp",
	OpcodeSelect: "select",
	OpcodeVIadd: "vIadd", OpcodeVIsub: "vIsub", OpcodeVImul: "vImul",
	OpcodeVFadd: "vFadd", OpcodeVFsub: "vFsub", OpcodeVFmul: "vFmul", OpcodeVFdiv: "vFdiv",
	OpcodeSplat: "splat", OpcodeExtractlane: "extractlane", OpcodeInsertlane: "insertlane",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op<%d>", uint32(o))
}

// IntCC is the predicate of an integer comparison.
type IntCC byte

const (
	IntCCEqual IntCC = iota
	IntCCNotEqual
	IntCCSignedLessThan
	IntCCSignedGreaterThanOrEqual
	IntCCSignedGreaterThan
	IntCCSignedLessThanOrEqual
	IntCCUnsignedLessThan
	IntCCUnsignedGreaterThanOrEqual
	IntCCUnsignedGreaterThan
	IntCCUnsignedLessThanOrEqual
)

// FloatCC is the predicate of a float comparison.
type FloatCC byte

const (
	FloatCCEqual FloatCC = iota
	FloatCCNotEqual
	FloatCCLessThan
	FloatCCLessThanOrEqual
	FloatCCGreaterThan
	FloatCCGreaterThanOrEqual
	FloatCCUnordered
	FloatCCOrdered
)

// sideEffect classifies an opcode for the purposes of dead-code
// elimination: pure instructions may be
// reordered/eliminated freely; sideEffectStrict instructions (stores,
// calls) must never be reordered across each other; sideEffectTraps
// instructions are always kept live
// even if their result is unused.
type sideEffect byte

const (
	sideEffectNone sideEffect = iota
	sideEffectStrict
	sideEffectTraps
)

func (o Opcode) sideEffect() sideEffect {
	switch o {
	case OpcodeStore, OpcodeIstore8, OpcodeIstore16, OpcodeIstore32, OpcodeStackStore,
		OpcodeCall, OpcodeCallIndirect, OpcodeReturn, OpcodeReturnCall, OpcodeReturnCallIndirect,
		OpcodeJump, OpcodeBrz, OpcodeBrnz, OpcodeBrTable:
		return sideEffectStrict
	case OpcodeTrap, OpcodeUdiv, OpcodeSdiv, OpcodeUrem, OpcodeSrem,
		OpcodeLoad, OpcodeUload8, OpcodeSload8, OpcodeUload16, OpcodeSload16, OpcodeUload32, OpcodeSload32:
		// Division/remainder and loads may trap (div-by-zero, OOB) so they
		// must not be eliminated even when their result is unused.
		return sideEffectTraps
	default:
		return sideEffectNone
	}
}

// HasSideEffect reports whether o must not be eliminated or reordered
// across other side-effecting instructions even if its result is unused
// (a store, a call, a trapping division or memory access). Exported so
// the lowering context can use it as a fusion barrier: an operand may
// only be folded into its one consumer if no side-effecting instruction
// sits between its definition and that consumer.
func (o Opcode) HasSideEffect() bool { return o.sideEffect() != sideEffectNone }

// isTerminator reports whether o ends a basic block.
func (o Opcode) isTerminator() bool {
	switch o {
	case OpcodeJump, OpcodeBrz, OpcodeBrnz, OpcodeBrTable, OpcodeReturn,
		OpcodeReturnCall, OpcodeReturnCallIndirect, OpcodeTrap:
		return true
	default:
		return false
	}
}

// IsTerminator reports whether o ends a basic block. Exported for
// consumers outside this package (the lowering context walks a block's
// tail looking for its terminator and, optionally, a preceding
// conditional branch fused with it).
func (o Opcode) IsTerminator() bool { return o.isTerminator() }

// IsConditionalBranch reports whether o branches on a condition with a
// fallthrough successor (as opposed to an unconditional terminator like
// Jump/Return/Trap).
func (o Opcode) IsConditionalBranch() bool {
	switch o {
	case OpcodeBrz, OpcodeBrnz, OpcodeBrTable:
		return true
	default:
		return false
	}
}

// InstructionData is the tagged-union payload of an instruction. Every
// instruction family fits these fixed fields; variable-arity operands
// (call arguments, return values, vconst lanes) live out-of-line in
// the DFG's ValueList arena, referenced by the vs field, so the struct
// itself stays fixed-size regardless of arity.
type InstructionData struct {
	opcode Opcode

	// v, v2, v3 are up to three inline Value operands, used by unary,
	// binary, ternary, branch (condition), load/store (address base),
	// select, and vector lane instructions.
	v, v2, v3 Value

	// vs holds the out-of-line operand list: call arguments, return
	// values, vconst lanes. Branch block-params live in argLists.
	vs valueListID

	// u1, u2 carry immediate payloads whose interpretation depends on
	// opcode: Imm64/Uimm64/Offset32/Ieee32/Ieee64 bit patterns, IntCC/
	// FloatCC predicates, trap codes, lane counts.
	u1, u2 uint64

	// typ is the type of the (first) result, or the operand type for
	// opcodes whose result type must be stated explicitly (stores, iconst).
	typ Type

	// exclusively for call/call_indirect:
	funcRef FuncRef
	sigRef  SigRef

	// exclusively for branch family: the jump table (br_table) or the two
	// target blocks (brz/brnz/jump), plus their block-param argument lists
	// (each entry is itself a valueListID, because each target can carry a
	// different arity of block params).
	targets  [2]BasicBlockID
	jumpTbl  JumpTable
	argLists [2]valueListID

	// results, set when the instruction's results are allocated.
	r0     Value
	rest   []Value // second and later results of a multi-result call (AllocResults).
}

// Opcode returns the opcode of the instruction.
func (d *InstructionData) Opcode() Opcode { return d.opcode }

// Arg returns the first argument.
func (d *InstructionData) Arg() Value { return d.v }

// Arg2 returns the first two arguments.
func (d *InstructionData) Arg2() (Value, Value) { return d.v, d.v2 }

// Arg3 returns the first three arguments.
func (d *InstructionData) Arg3() (Value, Value, Value) { return d.v, d.v2, d.v3 }

// Imm64 returns u1 reinterpreted as a signed 64-bit immediate (OpcodeIconst
// and friends).
func (d *InstructionData) Imm64() Imm64 { return Imm64(d.u1) }

// Float32 returns u1 reinterpreted as an Ieee32 (OpcodeF32const).
func (d *InstructionData) Float32() Ieee32 { return Ieee32(d.u1) }

// Float64 returns u1 reinterpreted as an Ieee64 (OpcodeF64const).
func (d *InstructionData) Float64() Ieee64 { return Ieee64(d.u1) }

// IntCC returns u1 reinterpreted as an integer comparison predicate.
func (d *InstructionData) IntCC() IntCC { return IntCC(d.u1) }

// FloatCC returns u1 reinterpreted as a float comparison predicate.
func (d *InstructionData) FloatCC() FloatCC { return FloatCC(d.u1) }

// Offset returns u2 reinterpreted as a signed 32-bit byte offset
// (load/store family).
func (d *InstructionData) Offset() Offset32 { return Offset32(int32(d.u2)) }

// Signed reports whether u1 == 1, used by OpcodeIextend to distinguish
// sign- vs zero-extension.
func (d *InstructionData) Signed() bool { return d.u1 != 0 }

// Type returns the declared instruction type (result type for most
// opcodes, operand type for stores).
func (d *InstructionData) Type() Type { return d.typ }

// Targets returns a branch instruction's two target blocks: for jump, t0 is
// the (only) target and t1 is invalid; for brz/brnz, t0 is the branch-taken
// target and t1 the fallthrough target; for br_table, t0 is the default
// target (use DFGView.JumpTableTargets for the indexed entries).
func (d *InstructionData) Targets() (t0, t1 BasicBlockID) { return d.targets[0], d.targets[1] }

// StackSlotIdx returns u1 reinterpreted as a StackSlot (stack_load/
// stack_store family).
func (d *InstructionData) StackSlotIdx() StackSlot { return StackSlot(d.u1) }

// TrapCode returns u1 reinterpreted as a trap's reason code.
func (d *InstructionData) TrapCode() uint64 { return d.u1 }

// LaneIndex returns u2 reinterpreted as the lane index an extractlane/
// insertlane instruction addresses.
func (d *InstructionData) LaneIndex() uint32 { return uint32(d.u2) }

// FuncRef returns the callee of a call/call_indirect instruction.
func (d *InstructionData) FuncRef() FuncRef { return d.funcRef }

// SigRef returns the signature of a call_indirect instruction.
func (d *InstructionData) SigRef() SigRef { return d.sigRef }

// IsConstant reports whether d is an integer constant (the operand form
// constant-folding and nop-elimination match against).
func (d *InstructionData) IsConstant() bool { return d.opcode == OpcodeIconst }

// ConstantVal returns the raw bit pattern of an OpcodeIconst instruction.
func (d *InstructionData) ConstantVal() uint64 { return d.u1 }

// Result returns the instruction's (first) result value.
func (d *InstructionData) Result() Value { return d.r0 }

// Results returns every value this instruction defines: its first result
// (if any) followed by its overflow results. Used by callers that must
// walk all results uniformly (virtual register assignment, liveness)
// rather than special-casing the first one.
func (d *InstructionData) Results() []Value {
	if !d.r0.Valid() {
		return nil
	}
	if len(d.rest) == 0 {
		return []Value{d.r0}
	}
	all := make([]Value, 0, 1+len(d.rest))
	return append(append(all, d.r0), d.rest...)
}

// String formats the instruction using plain value names (v0, v1, ...); use
// Builder.FormatInstruction for a version annotated with variable names.
func (d *InstructionData) String(id Instruction) string {
	var b strings.Builder
	if d.r0.Valid() {
		fmt.Fprintf(&b, "%s = ", d.r0)
	}
	fmt.Fprintf(&b, "%s", d.opcode)
	var args []string
	if d.v.Valid() {
		args = append(args, d.v.String())
	}
	if d.v2.Valid() {
		args = append(args, d.v2.String())
	}
	if d.v3.Valid() {
		args = append(args, d.v3.String())
	}
	if len(args) > 0 {
		fmt.Fprintf(&b, " %s", strings.Join(args, ", "))
	}
	return b.String()
}
