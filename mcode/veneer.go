package mcode

import "sort"

// ResolveFixups patches every recorded fixup with its label's final
// address, inserting veneer trampolines for any fixup whose target falls
// outside its encoding's range. Run this once per function, after its
// last block and constant pool have been emitted and every label bound.
//
// wazero's arm64 ResolveRelativeAddresses panics ("TODO: implement branch
// relocation for ... branch") the moment a branch's target doesn't fit;
// this resolves that case properly instead of reproducing the bug. The
// pass is a fixed point: inserting a
// veneer shifts every later offset, which can push another fixup out of
// range, so it repeats until a sweep inserts nothing.
func (b *Buffer) ResolveFixups() error {
	for {
		changed, err := b.resolveOnePass()
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

func (b *Buffer) resolveOnePass() (changed bool, err error) {
	for i := range b.fixups {
		f := &b.fixups[i]
		targetOff := f.veneerAt
		if !f.hasVeneer {
			targetOff = b.labelOffsets[f.Target]
		}
		if targetOff < 0 {
			return changed, &UnboundLabelError{Kind: f.Kind.Name()}
		}
		delta := targetOff - f.Site
		if f.Kind.InRange(delta) {
			f.Kind.Patch(b.Code, f.Site, delta)
			continue
		}
		if f.hasVeneer {
			// Even the veneer (unconditional, maximum range) can't reach;
			// nothing further this pass can do about it.
			return changed, &OutOfRangeError{Kind: f.Kind.Name(), Delta: delta}
		}
		at, ierr := b.insertVeneer(f)
		if ierr != nil {
			return changed, ierr
		}
		f.veneerAt = at
		f.hasVeneer = true
		changed = true
	}
	return changed, nil
}

// insertVeneer splices a veneer trampoline to f's real target into the
// nearest block boundary at or after f.Site, so the original branch
// (limited range) reaches the veneer (always in range, since it sits
// right after the branch's own block) and the veneer's own unconditional
// jump (much larger range) reaches the real target.
func (b *Buffer) insertVeneer(f *Fixup) (at int64, err error) {
	at = b.nearestBoundaryAfter(f.Site)
	size := f.Kind.VeneerSize()
	b.insertAt(at, size)
	f.Kind.EncodeVeneer(b.Code, at, b.labelOffsets[f.Target])
	return at, nil
}

func (b *Buffer) nearestBoundaryAfter(site int64) int64 {
	idx := sort.Search(len(b.blockBoundaries), func(i int) bool { return b.blockBoundaries[i] >= site })
	if idx < len(b.blockBoundaries) {
		return b.blockBoundaries[idx]
	}
	return int64(len(b.Code))
}

// insertAt splices size zero bytes into the code at pos, shifting every
// label, fixup site, block boundary, relocation, and trap offset at or
// after pos by size.
func (b *Buffer) insertAt(pos int64, size int) {
	b.Code = append(b.Code, make([]byte, size)...)
	copy(b.Code[pos+int64(size):], b.Code[pos:])
	for i := pos; i < pos+int64(size); i++ {
		b.Code[i] = 0
	}

	for i, off := range b.labelOffsets {
		if off >= pos {
			b.labelOffsets[i] = off + int64(size)
		}
	}
	for i := range b.fixups {
		f := &b.fixups[i]
		if f.Site >= pos {
			f.Site += int64(size)
		}
		if f.hasVeneer && f.veneerAt >= pos {
			f.veneerAt += int64(size)
		}
	}
	for i, bnd := range b.blockBoundaries {
		if bnd >= pos {
			b.blockBoundaries[i] = bnd + int64(size)
		}
	}
	for i := range b.relocations {
		if b.relocations[i].Offset >= pos {
			b.relocations[i].Offset += int64(size)
		}
	}
	for i := range b.traps {
		if b.traps[i].Offset >= pos {
			b.traps[i].Offset += int64(size)
		}
	}
}

// UnboundLabelError reports a fixup whose target label was never bound.
type UnboundLabelError struct{ Kind string }

func (e *UnboundLabelError) Error() string { return "mcode: unbound label for " + e.Kind + " fixup" }

// OutOfRangeError reports a fixup that can't be satisfied even through a
// veneer (the ISA's maximum-range unconditional branch still can't reach).
type OutOfRangeError struct {
	Kind  string
	Delta int64
}

func (e *OutOfRangeError) Error() string {
	return "mcode: " + e.Kind + " fixup out of range even via veneer"
}
