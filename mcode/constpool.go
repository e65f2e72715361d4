package mcode

// constEntry is one pending constant pool entry: raw bytes to be placed in
// an "island" within the code stream, plus the fixup that will point at it
// once its final address is known.
type constEntry struct {
	data  []byte
	align int64
	fixup Fixup
}

// ConstPool batches float/vector literals referenced by PC-relative
// load instructions (arm64's LDR literal, and the equivalent constant
// islands on the other ISAs) so they can be flushed as a block — the
// classic ARM "constant island" scheme. Entries are flushed only when a
// caller calls Flush (each ISA's Encode does so once, after the
// function's last instruction); nothing flushes early when a pending
// reference nears its encoding's range limit. Not present as a standalone
// type in wazero, which has no such pool (wazevo materializes
// floats with MOVZ/MOVK sequences instead); built fresh here because
// this design calls for a constant pool with island flushing
// explicitly.
type ConstPool struct {
	pending []constEntry
	// minRange is the smallest InRange-reporting distance among pending
	// entries' fixup kinds, tracked so Buffer knows how urgently to flush.
	minRange int64
}

// Reset discards all pending entries.
func (p *ConstPool) Reset() { p.pending = p.pending[:0]; p.minRange = 0 }

// Add registers data for later placement, returning the Label its address
// will be bound to once flushed.
func (p *ConstPool) Add(b *Buffer, data []byte, align int64, kind FixupKind) Label {
	l := b.NewLabel()
	p.pending = append(p.pending, constEntry{data: data, align: align, fixup: Fixup{Kind: kind, Target: l}})
	return l
}

// Empty reports whether there is nothing waiting to be flushed.
func (p *ConstPool) Empty() bool { return len(p.pending) == 0 }

// Flush emits every pending entry as an island at the buffer's current
// position (the caller is responsible for having just emitted an
// unconditional branch around it, or for calling this only at a point
// control flow doesn't fall through, e.g. after a function's last
// instruction) and binds each entry's label to its final address.
func (p *ConstPool) Flush(b *Buffer) {
	for _, e := range p.pending {
		for e.align > 1 && int64(len(b.Code))%e.align != 0 {
			b.Code = append(b.Code, 0)
		}
		b.BindLabel(e.fixup.Target)
		b.Code = append(b.Code, e.data...)
	}
	p.Reset()
}
