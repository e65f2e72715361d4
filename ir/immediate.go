package ir

import "math"

// Imm64 is a signed 64-bit immediate. All immediate types are value types:
// they carry no identity and are copied by value wherever they appear in an
// InstructionData payload.
type Imm64 int64

// Uimm64 is an unsigned 64-bit immediate.
type Uimm64 uint64

// Offset32 is a signed 32-bit byte offset, used by load/store instructions.
type Offset32 int32

// Ieee32 is the bit pattern of an IEEE-754 binary32 float. Storing the bit
// pattern rather than a float64 keeps NaN payloads and signs exact across
// the pipeline.
type Ieee32 uint32

// Float32 decodes the bit pattern as a float32.
func (i Ieee32) Float32() float32 { return math.Float32frombits(uint32(i)) }

// Ieee32FromFloat32 packs a float32 into its bit pattern.
func Ieee32FromFloat32(f float32) Ieee32 { return Ieee32(math.Float32bits(f)) }

// Ieee64 is the bit pattern of an IEEE-754 binary64 float.
type Ieee64 uint64

// Float64 decodes the bit pattern as a float64.
func (i Ieee64) Float64() float64 { return math.Float64frombits(uint64(i)) }

// Ieee64FromFloat64 packs a float64 into its bit pattern.
func Ieee64FromFloat64(f float64) Ieee64 { return Ieee64(math.Float64bits(f)) }

// Ieee16 is the bit pattern of an IEEE-754 binary16 float. The core never
// computes on f16 directly; it is legalized to a library call or promoted,
// per spec.
type Ieee16 uint16

// Ieee128 is the bit pattern of an IEEE-754 binary128 float, stored as two
// 64-bit halves (low, high) since Go has no native 128-bit integer type.
type Ieee128 struct {
	Lo, Hi uint64
}
