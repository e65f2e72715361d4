package mcode

import "encoding/binary"

// Label names a position in a Buffer's code that isn't known yet when a
// branch or load referencing it is first emitted (almost always a
// forward reference: a loop's exit block, a function's epilogue).
type Label int32

// LabelInvalid is the sentinel "no label".
const LabelInvalid Label = -1

// Buffer accumulates one function's machine code plus everything needed
// to finish it: label positions, pending label-relative fixups,
// relocations against external symbols, trap-site records, and a
// constant pool. Grounded on the label/labelPosition/fixup bookkeeping
// each of wazero's per-ISA machine.go files keeps inline
// (isa/arm64/machine.go's labelPositions map and
// ResolveRelativeAddresses), factored here into one ISA-parametric type
// so every backend shares a single fixup/veneer/constant-pool engine
// instead of reimplementing it four times (worth calling out "machine
// buffer" as one component, not a per-ISA one).
type Buffer struct {
	Code  []byte
	Order binary.ByteOrder

	labelOffsets []int64
	fixups       []Fixup
	relocations  []Relocation
	traps        []Trap
	constPool    ConstPool

	// blockBoundaries are positions marked safe for veneer insertion: a
	// point where falling through would be incorrect anyway (the previous
	// block already ended in an unconditional terminator), recorded by
	// MarkBlockBoundary as each ISA's Encode finishes lowering a block.
	blockBoundaries []int64
}

// NewBuffer returns an empty Buffer using order for multi-byte emission
// (binary.LittleEndian for arm64/amd64/riscv64, binary.BigEndian for
// s390x).
func NewBuffer(order binary.ByteOrder) *Buffer { return &Buffer{Order: order} }

// Reset discards all content so the Buffer can be reused for the next
// function.
func (b *Buffer) Reset() {
	b.Code = b.Code[:0]
	b.labelOffsets = b.labelOffsets[:0]
	b.fixups = b.fixups[:0]
	b.relocations = b.relocations[:0]
	b.traps = b.traps[:0]
	b.blockBoundaries = b.blockBoundaries[:0]
	b.constPool.Reset()
}

// CurrentOffset returns the byte offset the next Emit call will write at.
func (b *Buffer) CurrentOffset() int64 { return int64(len(b.Code)) }

// Emit1/Emit2/Emit4/Emit8 append one fixed-width little/big-endian (per
// Order) value.
func (b *Buffer) Emit1(v uint8) { b.Code = append(b.Code, v) }

func (b *Buffer) Emit2(v uint16) {
	var tmp [2]byte
	b.Order.PutUint16(tmp[:], v)
	b.Code = append(b.Code, tmp[:]...)
}

func (b *Buffer) Emit4(v uint32) {
	var tmp [4]byte
	b.Order.PutUint32(tmp[:], v)
	b.Code = append(b.Code, tmp[:]...)
}

func (b *Buffer) Emit8(v uint64) {
	var tmp [8]byte
	b.Order.PutUint64(tmp[:], v)
	b.Code = append(b.Code, tmp[:]...)
}

// EmitBytes appends raw bytes verbatim (instruction encodings already
// fully resolved, padding, constant data).
func (b *Buffer) EmitBytes(p []byte) { b.Code = append(b.Code, p...) }

// NewLabel allocates an unbound label.
func (b *Buffer) NewLabel() Label {
	b.labelOffsets = append(b.labelOffsets, -1)
	return Label(len(b.labelOffsets) - 1)
}

// BindLabel binds l to the buffer's current position. A label may only be
// bound once.
func (b *Buffer) BindLabel(l Label) {
	if b.labelOffsets[l] != -1 {
		panic("mcode: label bound twice")
	}
	b.labelOffsets[l] = b.CurrentOffset()
}

// LabelOffset returns l's bound offset, or -1 if it hasn't been bound yet.
func (b *Buffer) LabelOffset(l Label) int64 { return b.labelOffsets[l] }

// RecordFixup registers a pending label-relative reference at site
// (callers emit the instruction's placeholder bits first, then record the
// fixup against that site).
func (b *Buffer) RecordFixup(site int64, kind FixupKind, target Label) {
	b.fixups = append(b.fixups, Fixup{Site: site, Kind: kind, Target: target})
}

// RecordRelocation registers r against the function currently being
// encoded.
func (b *Buffer) RecordRelocation(r Relocation) { b.relocations = append(b.relocations, r) }

// RecordTrap registers t against the function currently being encoded.
func (b *Buffer) RecordTrap(t Trap) { b.traps = append(b.traps, t) }

// ConstPool returns the buffer's constant pool, for ISAs that materialize
// float/vector literals via a PC-relative load from an island.
func (b *Buffer) ConstPool() *ConstPool { return &b.constPool }

// MarkBlockBoundary records the current offset as a safe point for veneer insertion: a
// position reached only by an explicit branch, never by falling through
// from the instruction before it.
func (b *Buffer) MarkBlockBoundary() { b.blockBoundaries = append(b.blockBoundaries, b.CurrentOffset()) }

// Relocations returns the relocations recorded for the current function.
func (b *Buffer) Relocations() []Relocation { return b.relocations }

// Traps returns the trap sites recorded for the current function.
func (b *Buffer) Traps() []Trap { return b.traps }
