// Package interp evaluates an ir.Function directly, without lowering it to
// any machine target. It exists to give the compiler's semantic invariants
// a differential partner: a property test can run the same Function
// through both a backend (encode, then execute the emitted machine code)
// and this tree-walking evaluator, and compare results, rather than
// trusting the backend's own output as ground truth.
//
// Only the arithmetic, memory, and control-flow opcode subset a backend
// actually lowers is supported (package ir's int/control-flow core, not
// the SIMD/float-library-call tail); see Interpreter.Run's opcode switch
// for the exact set. A function that uses anything else returns
// *UnsupportedOpError rather than silently producing a wrong answer.
package interp

import (
	"fmt"

	"github.com/joelreymont/machgen/ir"
)

// UnsupportedOpError reports that Run reached an opcode this evaluator
// has no case for.
type UnsupportedOpError struct {
	Opcode ir.Opcode
}

func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("interp: unsupported opcode %s", e.Opcode)
}

// TrapError reports that the evaluated function trapped, the same way a
// compiled function would fault at the instruction Encode placed for it.
type TrapError struct {
	Code uint64
}

func (e *TrapError) Error() string { return fmt.Sprintf("interp: trap %d", e.Code) }

// Memory is the linear memory backing store/load instructions. A single
// byte slice stands in for a function's entire addressable memory; bounds
// violations trap rather than panic, since an out-of-bounds access is a
// property the function under test may legitimately exercise.
type Memory struct {
	Bytes []byte
}

func (m *Memory) read(addr uint64, size int) (uint64, error) {
	if addr+uint64(size) > uint64(len(m.Bytes)) {
		return 0, &TrapError{Code: trapCodeMemoryOOB}
	}
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.Bytes[addr+uint64(i)]) << (8 * i)
	}
	return v, nil
}

func (m *Memory) write(addr uint64, size int, v uint64) error {
	if addr+uint64(size) > uint64(len(m.Bytes)) {
		return &TrapError{Code: trapCodeMemoryOOB}
	}
	for i := 0; i < size; i++ {
		m.Bytes[addr+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

// trapCodeMemoryOOB is this evaluator's own synthetic trap code for an
// out-of-bounds access; it has no relationship to any backend's trap
// code numbering, since no machine code is ever emitted here.
const trapCodeMemoryOOB = ^uint64(0)

// Interpreter walks one ir.Function's instructions, holding every SSA
// value's current bit pattern in a flat table indexed by ir.ValueID (the
// same "dense array keyed by arena id" shape DFGView and Layout use
// throughout package ir, rather than a map).
type Interpreter struct {
	fn   *ir.Function
	vals []uint64
	mem  *Memory

	stackSlots [][]byte
}

// New creates an Interpreter over fn. mem backs every Load/Store; pass nil
// to run a function that only touches registers.
func New(fn *ir.Function, mem *Memory) *Interpreter {
	return &Interpreter{
		fn:   fn,
		vals: make([]uint64, fn.DFG().NumValues()),
		mem:  mem,
	}
}

func (it *Interpreter) set(v ir.Value, bits uint64) {
	if int(v.ID()) >= len(it.vals) {
		grown := make([]uint64, v.ID()+1)
		copy(grown, it.vals)
		it.vals = grown
	}
	it.vals[v.ID()] = bits
}

func (it *Interpreter) get(v ir.Value) uint64 {
	v = it.fn.DFG().ResolveValue(v)
	return it.vals[v.ID()]
}

func (it *Interpreter) signed(v ir.Value) int64 {
	bits := it.get(v)
	return signExtend(bits, v.Type().Bits())
}

// signExtend treats the low width bits of bits as a two's-complement
// integer and sign-extends it to a full int64, mirroring how every
// backend in this module keeps narrower-than-64-bit values sign-extended
// in their full-width register.
func signExtend(bits uint64, width int) int64 {
	if width >= 64 {
		return int64(bits)
	}
	shift := 64 - uint(width)
	return int64(bits<<shift) >> shift
}

func truncate(bits uint64, width int) uint64 {
	if width >= 64 {
		return bits
	}
	return bits & (uint64(1)<<uint(width) - 1)
}

// Run evaluates fn starting at its entry block with the given argument
// values (one per Signature.Params entry, passed positionally as the
// entry block's params) and returns the values passed to the function's
// Return instruction, or an error if the function trapped or used an
// opcode this evaluator doesn't support.
func (it *Interpreter) Run(args []uint64) ([]uint64, error) {
	fn := it.fn
	entry := fn.EntryBlockID()
	for i, a := range args {
		it.set(fn.Param(entry, i), a)
	}

	blk := entry
	for {
		results, next, err := it.runBlock(blk)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return results, nil
		}
		blk = *next
	}
}

// runBlock evaluates blk's instructions in layout order up to and
// including its terminator. It returns (results, nil, nil) if the
// terminator was Return, or (nil, &nextBlock, nil) if control falls
// through to another block.
func (it *Interpreter) runBlock(blk ir.BasicBlockID) ([]uint64, *ir.BasicBlockID, error) {
	fn := it.fn
	dfg := fn.DFG()
	layout := fn.LayoutView()

	for inst := layout.FirstInst(blk); inst.Valid(); inst = layout.NextInst(inst) {
		d := dfg.InstructionData(inst)
		switch d.Opcode() {
		case ir.OpcodeJump:
			t0, _ := d.Targets()
			it.bindBlockArgs(dfg.BranchArgs(inst, 0), t0)
			return nil, &t0, nil

		case ir.OpcodeBrz, ir.OpcodeBrnz:
			taken, fallthroughBlk := d.Targets()
			cond := it.get(d.Arg())
			takeBranch := (d.Opcode() == ir.OpcodeBrz && cond == 0) ||
				(d.Opcode() == ir.OpcodeBrnz && cond != 0)
			if takeBranch {
				it.bindBlockArgs(dfg.BranchArgs(inst, 0), taken)
				return nil, &taken, nil
			}
			it.bindBlockArgs(dfg.BranchArgs(inst, 1), fallthroughBlk)
			return nil, &fallthroughBlk, nil

		case ir.OpcodeReturn:
			vs := dfg.ValueList(inst)
			out := make([]uint64, len(vs))
			for i, v := range vs {
				out[i] = it.get(v)
			}
			return out, nil, nil

		case ir.OpcodeTrap:
			return nil, nil, &TrapError{Code: d.TrapCode()}

		default:
			if err := it.step(inst, d); err != nil {
				return nil, nil, err
			}
		}
	}
	return nil, nil, fmt.Errorf("interp: %s: fell off the end with no terminator", blk)
}

func (it *Interpreter) bindBlockArgs(args []ir.Value, target ir.BasicBlockID) {
	for i, a := range args {
		it.set(it.fn.Param(target, i), it.get(a))
	}
}

// step evaluates one non-terminator instruction and records its result,
// if any.
func (it *Interpreter) step(inst ir.Instruction, d *ir.InstructionData) error {
	t := d.Type()
	w := t.Bits()

	switch d.Opcode() {
	case ir.OpcodeIconst:
		it.set(d.Result(), truncate(uint64(d.Imm64()), w))

	case ir.OpcodeIadd:
		x, y := d.Arg2()
		it.set(d.Result(), truncate(it.get(x)+it.get(y), w))
	case ir.OpcodeIsub:
		x, y := d.Arg2()
		it.set(d.Result(), truncate(it.get(x)-it.get(y), w))
	case ir.OpcodeImul:
		x, y := d.Arg2()
		it.set(d.Result(), truncate(it.get(x)*it.get(y), w))
	case ir.OpcodeUdiv:
		x, y := d.Arg2()
		yv := it.get(y)
		if yv == 0 {
			return &TrapError{Code: uint64(ir.OpcodeUdiv)}
		}
		it.set(d.Result(), truncate(it.get(x)/yv, w))
	case ir.OpcodeSdiv:
		x, y := d.Arg2()
		yv := it.signed(y)
		if yv == 0 {
			return &TrapError{Code: uint64(ir.OpcodeSdiv)}
		}
		it.set(d.Result(), truncate(uint64(it.signed(x)/yv), w))
	case ir.OpcodeUrem:
		x, y := d.Arg2()
		yv := it.get(y)
		if yv == 0 {
			return &TrapError{Code: uint64(ir.OpcodeUrem)}
		}
		it.set(d.Result(), truncate(it.get(x)%yv, w))
	case ir.OpcodeSrem:
		x, y := d.Arg2()
		yv := it.signed(y)
		if yv == 0 {
			return &TrapError{Code: uint64(ir.OpcodeSrem)}
		}
		it.set(d.Result(), truncate(uint64(it.signed(x)%yv), w))

	case ir.OpcodeBand:
		x, y := d.Arg2()
		it.set(d.Result(), it.get(x)&it.get(y))
	case ir.OpcodeBor:
		x, y := d.Arg2()
		it.set(d.Result(), it.get(x)|it.get(y))
	case ir.OpcodeBxor:
		x, y := d.Arg2()
		it.set(d.Result(), it.get(x)^it.get(y))

	case ir.OpcodeIshl:
		x, y := d.Arg2()
		n := it.get(y) % uint64(w)
		it.set(d.Result(), truncate(it.get(x)<<n, w))
	case ir.OpcodeUshr:
		x, y := d.Arg2()
		n := it.get(y) % uint64(w)
		it.set(d.Result(), truncate(it.get(x)>>n, w))
	case ir.OpcodeSshr:
		x, y := d.Arg2()
		n := uint64(it.get(y)) % uint64(w)
		it.set(d.Result(), truncate(uint64(it.signed(x)>>n), w))
	case ir.OpcodeRotl:
		x, y := d.Arg2()
		n := it.get(y) % uint64(w)
		xv := truncate(it.get(x), w)
		it.set(d.Result(), truncate(xv<<n|xv>>(uint64(w)-n), w))
	case ir.OpcodeRotr:
		x, y := d.Arg2()
		n := it.get(y) % uint64(w)
		xv := truncate(it.get(x), w)
		it.set(d.Result(), truncate(xv>>n|xv<<(uint64(w)-n), w))

	case ir.OpcodeIneg:
		it.set(d.Result(), truncate(uint64(-it.signed(d.Arg())), w))
	case ir.OpcodeBnot:
		it.set(d.Result(), truncate(^it.get(d.Arg()), w))
	case ir.OpcodeClz:
		it.set(d.Result(), uint64(clz(truncate(it.get(d.Arg()), w), w)))
	case ir.OpcodeCtz:
		it.set(d.Result(), uint64(ctz(truncate(it.get(d.Arg()), w), w)))
	case ir.OpcodePopcnt:
		it.set(d.Result(), uint64(popcnt(it.get(d.Arg()))))

	case ir.OpcodeIextend:
		src := d.Arg()
		srcW := src.Type().Bits()
		if d.Signed() {
			it.set(d.Result(), truncate(uint64(signExtend(it.get(src), srcW)), w))
		} else {
			it.set(d.Result(), truncate(it.get(src), srcW))
		}
	case ir.OpcodeIreduce:
		it.set(d.Result(), truncate(uint64(signExtend(it.get(d.Arg()), w)), w))

	case ir.OpcodeIcmp:
		x, y := d.Arg2()
		it.set(d.Result(), boolU64(it.evalIntCC(d.IntCC(), x, y)))
	case ir.OpcodeIcmpImm:
		x := d.Arg()
		imm := uint64(d.Imm64())
		it.set(d.Result(), boolU64(it.evalIntCCImm(d.IntCC(), x, imm)))

	case ir.OpcodeSelect:
		c, a, b := d.Arg3()
		if it.get(c) != 0 {
			it.set(d.Result(), it.get(a))
		} else {
			it.set(d.Result(), it.get(b))
		}

	case ir.OpcodeLoad:
		return it.load(d, w, signExtendLoads)
	case ir.OpcodeUload8:
		return it.load(d, 8, false)
	case ir.OpcodeSload8:
		return it.load(d, 8, true)
	case ir.OpcodeUload16:
		return it.load(d, 16, false)
	case ir.OpcodeSload16:
		return it.load(d, 16, true)
	case ir.OpcodeUload32:
		return it.load(d, 32, false)
	case ir.OpcodeSload32:
		return it.load(d, 32, true)

	case ir.OpcodeStore:
		return it.store(d, w)
	case ir.OpcodeIstore8:
		return it.store(d, 8)
	case ir.OpcodeIstore16:
		return it.store(d, 16)
	case ir.OpcodeIstore32:
		return it.store(d, 32)

	case ir.OpcodeStackLoad:
		return it.stackLoad(d, w)
	case ir.OpcodeStackStore:
		return it.stackStore(d)

	default:
		return &UnsupportedOpError{Opcode: d.Opcode()}
	}
	return nil
}

// signExtendLoads matches riscv64's lowerLoad convention (a plain Load
// sign-extends a sub-64-bit result) so the differential partner agrees
// with every backend on what a Load of a narrower-than-register type
// produces; a function that only ever declares Load at its natural
// width never observes the difference.
const signExtendLoads = true

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (it *Interpreter) evalIntCC(cc ir.IntCC, x, y ir.Value) bool {
	return evalIntCCVals(cc, it.get(x), it.get(y), it.signed(x), it.signed(y))
}

func (it *Interpreter) evalIntCCImm(cc ir.IntCC, x ir.Value, imm uint64) bool {
	return evalIntCCVals(cc, it.get(x), imm, it.signed(x), signExtend(imm, x.Type().Bits()))
}

func evalIntCCVals(cc ir.IntCC, ux, uy uint64, sx, sy int64) bool {
	switch cc {
	case ir.IntCCEqual:
		return ux == uy
	case ir.IntCCNotEqual:
		return ux != uy
	case ir.IntCCSignedLessThan:
		return sx < sy
	case ir.IntCCSignedGreaterThanOrEqual:
		return sx >= sy
	case ir.IntCCSignedGreaterThan:
		return sx > sy
	case ir.IntCCSignedLessThanOrEqual:
		return sx <= sy
	case ir.IntCCUnsignedLessThan:
		return ux < uy
	case ir.IntCCUnsignedGreaterThanOrEqual:
		return ux >= uy
	case ir.IntCCUnsignedGreaterThan:
		return ux > uy
	case ir.IntCCUnsignedLessThanOrEqual:
		return ux <= uy
	default:
		return false
	}
}

func (it *Interpreter) load(d *ir.InstructionData, bits int, signed bool) error {
	if it.mem == nil {
		return fmt.Errorf("interp: load with no backing Memory")
	}
	addr := it.get(d.Arg()) + uint64(int64(d.Offset()))
	v, err := it.mem.read(addr, bits/8)
	if err != nil {
		return err
	}
	if signed {
		v = truncate(uint64(signExtend(v, bits)), d.Type().Bits())
	}
	it.set(d.Result(), v)
	return nil
}

func (it *Interpreter) store(d *ir.InstructionData, bits int) error {
	if it.mem == nil {
		return fmt.Errorf("interp: store with no backing Memory")
	}
	value, base := d.Arg2()
	addr := it.get(base) + uint64(int64(d.Offset()))
	return it.mem.write(addr, bits/8, truncate(it.get(value), bits))
}

// stackSlot returns the backing byte slice for slot, allocating it (zero-
// filled, per its declared size) on first use.
func (it *Interpreter) stackSlot(slot ir.StackSlot) []byte {
	for len(it.stackSlots) <= int(slot) {
		it.stackSlots = append(it.stackSlots, nil)
	}
	if it.stackSlots[slot] == nil {
		data := it.fn.DFG().StackSlot(slot)
		it.stackSlots[slot] = make([]byte, data.Size)
	}
	return it.stackSlots[slot]
}

func (it *Interpreter) stackLoad(d *ir.InstructionData, bits int) error {
	buf := it.stackSlot(d.StackSlotIdx())
	off := int64(d.Offset())
	var v uint64
	for i := 0; i < bits/8; i++ {
		v |= uint64(buf[off+int64(i)]) << (8 * i)
	}
	it.set(d.Result(), truncate(uint64(signExtend(v, bits)), d.Type().Bits()))
	return nil
}

func (it *Interpreter) stackStore(d *ir.InstructionData) error {
	buf := it.stackSlot(d.StackSlotIdx())
	off := int64(d.Offset())
	value := d.Arg()
	v := it.get(value)
	bits := value.Type().Bits()
	for i := 0; i < bits/8; i++ {
		buf[off+int64(i)] = byte(v >> (8 * i))
	}
	return nil
}

func clz(v uint64, width int) int {
	if v == 0 {
		return width
	}
	n := 0
	for bit := width - 1; bit >= 0; bit-- {
		if v&(uint64(1)<<uint(bit)) != 0 {
			break
		}
		n++
	}
	return n
}

func ctz(v uint64, width int) int {
	if v == 0 {
		return width
	}
	n := 0
	for bit := 0; bit < width; bit++ {
		if v&(uint64(1)<<uint(bit)) != 0 {
			break
		}
		n++
	}
	return n
}

func popcnt(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
