package s390x

import (
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
)

// regallocFunction/regallocBlock mirror the other three backends'
// adapters exactly: same blockOrder reuse, same next-pointer walk
// bounded by blockHead/blockTail.
type regallocFunction struct {
	m        *machine
	predsBuf []regalloc.Block

	rpoIdx int
	poIdx  int
}

func (f *regallocFunction) PostOrderBlockIteratorBegin() regalloc.Block {
	f.poIdx = len(f.m.blockOrder) - 1
	return f.blockAt(f.poIdx)
}

func (f *regallocFunction) PostOrderBlockIteratorNext() regalloc.Block {
	f.poIdx--
	return f.blockAt(f.poIdx)
}

func (f *regallocFunction) ReversePostOrderBlockIteratorBegin() regalloc.Block {
	f.rpoIdx = 0
	return f.blockAt(f.rpoIdx)
}

func (f *regallocFunction) ReversePostOrderBlockIteratorNext() regalloc.Block {
	f.rpoIdx++
	return f.blockAt(f.rpoIdx)
}

func (f *regallocFunction) blockAt(i int) regalloc.Block {
	if i < 0 || i >= len(f.m.blockOrder) {
		return nil
	}
	blk := f.m.blockOrder[i]
	return &regallocBlock{f: f, blk: blk, cur: f.m.blockHead[blk]}
}

func (f *regallocFunction) ClobberedRegisters(regs []regalloc.VReg) {
	f.m.clobbered = append(f.m.clobbered[:0], regs...)
}

func (f *regallocFunction) StoreRegisterBefore(v regalloc.VReg, instr regalloc.Instr) {
	f.m.insertSpillCode(v, instr.(*instr), true, true)
}

func (f *regallocFunction) StoreRegisterAfter(v regalloc.VReg, instr regalloc.Instr) {
	f.m.insertSpillCode(v, instr.(*instr), true, false)
}

func (f *regallocFunction) ReloadRegisterBefore(v regalloc.VReg, instr regalloc.Instr) {
	f.m.insertSpillCode(v, instr.(*instr), false, true)
}

func (f *regallocFunction) ReloadRegisterAfter(v regalloc.VReg, instr regalloc.Instr) {
	f.m.insertSpillCode(v, instr.(*instr), false, false)
}

func (f *regallocFunction) Done() {}

type regallocBlock struct {
	f   *regallocFunction
	blk ir.BasicBlockID
	cur *instr
}

func (b *regallocBlock) ID() int { return int(b.blk) }

func (b *regallocBlock) InstrIteratorBegin() regalloc.Instr {
	b.cur = b.f.m.blockHead[b.blk]
	return b.curInstr()
}

func (b *regallocBlock) InstrIteratorNext() regalloc.Instr {
	tail := b.f.m.blockTail[b.blk]
	if b.cur == tail {
		b.cur = nil
		return nil
	}
	b.cur = b.cur.next
	return b.curInstr()
}

func (b *regallocBlock) curInstr() regalloc.Instr {
	if b.cur == nil {
		return nil
	}
	return b.cur
}

func (b *regallocBlock) Preds() []regalloc.Block {
	fn := b.f.m.compiler.Function()
	n := fn.Preds(b.blk)
	b.f.predsBuf = b.f.predsBuf[:0]
	for i := 0; i < n; i++ {
		pred := fn.PredBlock(b.blk, i)
		b.f.predsBuf = append(b.f.predsBuf, &regallocBlock{f: b.f, blk: pred, cur: b.f.m.blockHead[pred]})
	}
	return b.f.predsBuf
}

func (b *regallocBlock) Entry() bool { return b.f.m.compiler.Function().EntryBlockID() == b.blk }

var (
	_ regalloc.Function = (*regallocFunction)(nil)
	_ regalloc.Block    = (*regallocBlock)(nil)
)
