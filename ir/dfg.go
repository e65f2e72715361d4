package ir

// dataFlowGraph owns every entity arena for one function: instructions,
// values, blocks, out-of-line value lists, and the pooled data the
// instruction payloads reference (constants, stack slots, jump tables,
// func refs, signatures). Arenas never compact: removing an instruction or
// block only unlinks it from the Layout and marks its payload dead; the
// slot is never reused within one compilation, so ids remain stable for
// the whole pipeline.
type dataFlowGraph struct {
	insts      []InstructionData
	values     []ValueData
	blocks     []BasicBlockData
	valueLists [][]Value

	signatures []Signature
	constants  [][]byte
	stackSlots []StackSlotData
	jumpTables [][]BasicBlockID
	funcRefs   []FuncRefData
	dataRefs   []DataRefData
}

// StackSlotData describes one function-local stack allocation.
type StackSlotData struct {
	Size  uint32
	Align uint32
}

// FuncRefData names an external callee by signature; the core never
// resolves it to an address, only records relocations against it.
type FuncRefData struct {
	Name string
	Sig  SigRef
}

// DataRefData names an external data symbol.
type DataRefData struct {
	Name string
}

func newDataFlowGraph() *dataFlowGraph {
	return &dataFlowGraph{}
}

func (g *dataFlowGraph) newValueID() ValueID {
	id := ValueID(len(g.values))
	g.values = append(g.values, ValueData{})
	return id
}

func (g *dataFlowGraph) setValue(id ValueID, d ValueData) { g.values[id] = d }

func (g *dataFlowGraph) value(id ValueID) *ValueData { return &g.values[id] }

func (g *dataFlowGraph) block(id BasicBlockID) *BasicBlockData { return &g.blocks[id] }

func (g *dataFlowGraph) newBlock() BasicBlockID {
	id := BasicBlockID(len(g.blocks))
	g.blocks = append(g.blocks, BasicBlockData{})
	return id
}

func (g *dataFlowGraph) inst(id Instruction) *InstructionData { return &g.insts[id] }

func (g *dataFlowGraph) newInst(d InstructionData) Instruction {
	id := Instruction(len(g.insts))
	g.insts = append(g.insts, d)
	return id
}

func (g *dataFlowGraph) newValueList(vs []Value) valueListID {
	if len(vs) == 0 {
		return valueListIDNone
	}
	id := valueListID(len(g.valueLists))
	cp := make([]Value, len(vs))
	copy(cp, vs)
	g.valueLists = append(g.valueLists, cp)
	return id
}

func (g *dataFlowGraph) valueList(id valueListID) []Value {
	if id == valueListIDNone {
		return nil
	}
	return g.valueLists[id]
}

func (g *dataFlowGraph) setValueList(id valueListID, vs []Value) {
	if id == valueListIDNone {
		return
	}
	g.valueLists[id] = vs
}

// ResolveValue walks v's alias chain to its non-alias root, compressing
// the chain it walked so subsequent lookups are O(1). Aliases form a DAG
// by construction (the builder never creates a cycle); a cycle here is a
// bug in a pass, and compilation aborts rather than looping forever.
func (g *dataFlowGraph) ResolveValue(v Value) Value {
	id := v.ID()
	visited := 0
	cur := v
	for {
		vd := g.value(cur.ID())
		if vd.kind != valueDataAlias {
			break
		}
		cur = vd.aliasTo
		visited++
		if visited > len(g.values)+1 {
			panic("BUG: alias cycle in DFG")
		}
	}
	if cur != v {
		g.value(id).aliasTo = cur
	}
	return cur
}

// alias makes `from` an alias of `to`: every future read of `from` resolves
// to `to` (or wherever `to` itself eventually resolves). Used by
// optimization passes (constant folding, redundant-phi elimination,
// legalization) to redirect uses without rewriting every instruction that
// references the old value.
func (g *dataFlowGraph) makeAlias(from, to Value) {
	g.value(from.ID()).kind = valueDataAlias
	g.value(from.ID()).aliasTo = to
}
