package arm64

import "github.com/joelreymont/machgen/ir"

// condFlag is the A64 4-bit condition code tested by B.cond and CSEL-family
// instructions. Grounded on cond.go's condFlag, narrowed to just the flag
// form (condKindCondFlagSet) since this backend always materializes a
// comparison's flags with a dedicated cmp/fcmp instruction rather than
// fusing a register-is-zero test into the branch the way wazero's
// CBZ/CBNZ condKinds do; one encoding path per comparison keeps the
// encoder's branch-range bookkeeping uniform.
type condFlag byte

const (
	condEQ condFlag = iota
	condNE
	condHS // unsigned >=
	condLO // unsigned <
	condMI // negative
	condPL // positive or zero
	condVS
	condVC
	condHI // unsigned >
	condLS // unsigned <=
	condGE // signed >=
	condLT // signed <
	condGT // signed >
	condLE // signed <=
	condAL
	condNV
)

func (c condFlag) invert() condFlag {
	return c ^ 1
}

func fromIntCC(cc ir.IntCC) condFlag {
	switch cc {
	case ir.IntCCEqual:
		return condEQ
	case ir.IntCCNotEqual:
		return condNE
	case ir.IntCCSignedLessThan:
		return condLT
	case ir.IntCCSignedGreaterThanOrEqual:
		return condGE
	case ir.IntCCSignedGreaterThan:
		return condGT
	case ir.IntCCSignedLessThanOrEqual:
		return condLE
	case ir.IntCCUnsignedLessThan:
		return condLO
	case ir.IntCCUnsignedGreaterThanOrEqual:
		return condHS
	case ir.IntCCUnsignedGreaterThan:
		return condHI
	case ir.IntCCUnsignedLessThanOrEqual:
		return condLS
	default:
		panic("arm64: unknown IntCC")
	}
}

// fromFloatCC maps a float predicate to the condition flag tested after an
// FCMP, which sets flags per IEEE unordered semantics (a NaN operand clears
// Z, clears/sets C and N in a way that makes unordered comparisons always
// false under EQ/LT/LE and always true under NE). FloatCCUnordered and
// FloatCCOrdered read the V flag directly.
func fromFloatCC(cc ir.FloatCC) condFlag {
	switch cc {
	case ir.FloatCCEqual:
		return condEQ
	case ir.FloatCCNotEqual:
		return condNE
	case ir.FloatCCLessThan:
		return condMI
	case ir.FloatCCLessThanOrEqual:
		return condLS
	case ir.FloatCCGreaterThan:
		return condGT
	case ir.FloatCCGreaterThanOrEqual:
		return condGE
	case ir.FloatCCUnordered:
		return condVS
	case ir.FloatCCOrdered:
		return condVC
	default:
		panic("arm64: unknown FloatCC")
	}
}
