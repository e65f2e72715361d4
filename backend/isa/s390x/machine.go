package s390x

import (
	"fmt"
	"strings"

	"github.com/joelreymont/machgen/backend"
	"github.com/joelreymont/machgen/backend/regalloc"
	"github.com/joelreymont/machgen/ir"
	"github.com/joelreymont/machgen/mcode"
)

// machine implements backend.Machine for the z/Linux integer subset of
// z/Architecture. Structurally identical to the other three backends in
// this module (same whole-function head/tail list, same per-block
// bounds, same emit/emitSeq splice-in-reverse trick since
// Compiler.Lower walks a block's instructions tail-to-head); only
// lower.go and instr_encoding.go differ in substance.
type machine struct {
	compiler   backend.Compiler
	currentABI *backend.FunctionABI[backend.RegInfo]

	head, tail *instr

	curBlock             ir.BasicBlockID
	blockHead, blockTail map[ir.BasicBlockID]*instr
	blockOrder           []ir.BasicBlockID
	curHead, curTail     *instr

	spillSlots    map[regalloc.VRegID]int64
	spillSlotSize int64
	clobbered     []regalloc.VReg
	frameSize     int64

	regInfo *regalloc.RegisterInfo
}

// NewBackend returns a Machine targeting z/Architecture's 64-bit general
// register integer/control-flow subset under the z/Linux ELF ABI.
func NewBackend() backend.Machine {
	return &machine{
		blockHead:  map[ir.BasicBlockID]*instr{},
		blockTail:  map[ir.BasicBlockID]*instr{},
		spillSlots: map[regalloc.VRegID]int64{},
		regInfo:    registerInfo(),
	}
}

func (m *machine) SetCompiler(c backend.Compiler) { m.compiler = c }

func (m *machine) SetCurrentABI(abi *backend.FunctionABI[backend.RegInfo]) { m.currentABI = abi }

func (m *machine) StartFunction() {
	m.head, m.tail = nil, nil
	m.blockOrder = m.blockOrder[:0]
	for k := range m.blockHead {
		delete(m.blockHead, k)
	}
	for k := range m.blockTail {
		delete(m.blockTail, k)
	}
	for k := range m.spillSlots {
		delete(m.spillSlots, k)
	}
	m.spillSlotSize = 0
	m.clobbered = m.clobbered[:0]
}

func (m *machine) StartBlock(blk ir.BasicBlockID) {
	m.curBlock = blk
	m.curHead, m.curTail = nil, nil
	m.blockOrder = append(m.blockOrder, blk)
}

func (m *machine) emit(i *instr) { m.emitSeq([]*instr{i}) }

func (m *machine) emitSeq(is []*instr) {
	if len(is) == 0 {
		return
	}
	for j := 0; j < len(is)-1; j++ {
		is[j].next = is[j+1]
		is[j+1].prev = is[j]
	}
	is[len(is)-1].next = m.curHead
	if m.curHead != nil {
		m.curHead.prev = is[len(is)-1]
	} else {
		m.curTail = is[len(is)-1]
	}
	m.curHead = is[0]
}

func (m *machine) EndBlock() {
	m.startEntryBlockParams(m.curBlock)

	m.blockHead[m.curBlock] = m.curHead
	m.blockTail[m.curBlock] = m.curTail

	if m.curHead != nil {
		if m.tail != nil {
			m.tail.next = m.curHead
			m.curHead.prev = m.tail
		} else {
			m.head = m.curHead
		}
		m.tail = m.curTail
	}
}

func (m *machine) EndFunction() {}

func (m *machine) RegisterInfo() *regalloc.RegisterInfo { return m.regInfo }

func (m *machine) ABIRegInfo() backend.RegInfo { return abiRegInfo{} }

func (m *machine) RegAlloc() {
	f := &regallocFunction{m: m}
	alloc := regalloc.NewLinearScanAllocator(m.regInfo)
	alloc.Allocate(f)
}

func (m *machine) PostRegAlloc() {
	m.insertPrologueEpilogue()
}

func (m *machine) FrameSize() int64 { return m.frameSize }

func (m *machine) Encode(buf *mcode.Buffer) error {
	return m.encode(buf)
}

func (m *machine) Format() string {
	var sb strings.Builder
	for _, blk := range m.blockOrder {
		fmt.Fprintf(&sb, "block%d:\n", blk)
		tail := m.blockTail[blk]
		for i := m.blockHead[blk]; i != nil; i = i.next {
			fmt.Fprintf(&sb, "\t%s\n", i)
			if i == tail {
				break
			}
		}
	}
	return sb.String()
}

func (m *machine) Reset() {
	m.head, m.tail = nil, nil
	m.currentABI = nil
	m.frameSize = 0
}
