package ir

// This file exposes raw InstructionData constructors for code outside
// this package (legalize, backend lowering) that rewrites instructions
// in place rather than appending to a block under construction — the
// case Builder's Insert* API doesn't cover, since it always targets
// Builder.currentBlock. Callers place the returned payload with
// DFGView.NewInstruction plus Layout.InsertInstructionBefore/
// AppendInstruction, then assign its result with DFGView.AllocResult.

// MakeIconst builds an integer constant payload.
func MakeIconst(typ Type, imm Imm64) InstructionData {
	return InstructionData{opcode: OpcodeIconst, u1: uint64(imm), typ: typ}
}

// MakeF32const builds an f32 constant payload.
func MakeF32const(v Ieee32) InstructionData {
	return InstructionData{opcode: OpcodeF32const, u1: uint64(v), typ: TypeF32}
}

// MakeF64const builds an f64 constant payload.
func MakeF64const(v Ieee64) InstructionData {
	return InstructionData{opcode: OpcodeF64const, u1: uint64(v), typ: TypeF64}
}

// MakeUnary builds a unary-operand instruction payload.
func MakeUnary(op Opcode, typ Type, x Value) InstructionData {
	return InstructionData{opcode: op, v: x, typ: typ}
}

// MakeBinary builds a binary-operand instruction payload.
func MakeBinary(op Opcode, typ Type, x, y Value) InstructionData {
	return InstructionData{opcode: op, v: x, v2: y, typ: typ}
}

// MakeTernary builds a ternary-operand instruction payload (select, and
// vector fused ops that need three inline operands).
func MakeTernary(op Opcode, typ Type, x, y, z Value) InstructionData {
	return InstructionData{opcode: op, v: x, v2: y, v3: z, typ: typ}
}

// MakeIcmp builds an integer comparison, whose result type is always
// TypeIflags.
func MakeIcmp(cc IntCC, x, y Value) InstructionData {
	return InstructionData{opcode: OpcodeIcmp, v: x, v2: y, u1: uint64(cc), typ: TypeIflags}
}

// MakeFcmp builds a float comparison, whose result type is always
// TypeFlags.
func MakeFcmp(cc FloatCC, x, y Value) InstructionData {
	return InstructionData{opcode: OpcodeFcmp, v: x, v2: y, u1: uint64(cc), typ: TypeFlags}
}

// MakeSelect builds a branchless select: cond is nonzero selects x, zero
// selects y.
func MakeSelect(cond, x, y Value, typ Type) InstructionData {
	return InstructionData{opcode: OpcodeSelect, v: cond, v2: x, v3: y, typ: typ}
}

// MakeIextend builds a sign/zero-extend; signed selects sign-extension.
func MakeIextend(typ Type, x Value, signed bool) InstructionData {
	u1 := uint64(0)
	if signed {
		u1 = 1
	}
	return InstructionData{opcode: OpcodeIextend, v: x, u1: u1, typ: typ}
}

// MakeIreduce builds a narrowing truncation.
func MakeIreduce(typ Type, x Value) InstructionData {
	return InstructionData{opcode: OpcodeIreduce, v: x, typ: typ}
}

// MakeLoad builds a load from address base+offset.
func MakeLoad(op Opcode, typ Type, base Value, offset Offset32) InstructionData {
	return InstructionData{opcode: op, v: base, u2: uint64(uint32(offset)), typ: typ}
}

// MakeStore builds a store of value to address base+offset.
func MakeStore(op Opcode, value, base Value, offset Offset32) InstructionData {
	return InstructionData{opcode: op, v: value, v2: base, u2: uint64(uint32(offset))}
}

// MakeCall builds a direct call payload; args is interned via
// DFGView.NewValueList before calling this. Results are assigned
// separately via DFGView.AllocResults.
func MakeCall(callee FuncRef, sig SigRef, args valueListID) InstructionData {
	return InstructionData{opcode: OpcodeCall, funcRef: callee, sigRef: sig, vs: args}
}
