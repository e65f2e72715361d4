package mcode

// RelocationKind identifies how a linker or loader must patch one
// reference to a symbol the assembler couldn't resolve at encode time
// (typically a call or address-of-function-reference crossing a
// compilation unit boundary). The set spans every ISA this module targets
// so callers can switch on kind without an ISA-specific import.
type RelocationKind byte

const (
	RelocationInvalid RelocationKind = iota

	// Generic, width-only relocations.
	RelocationAbs8   // 8-byte absolute address.
	RelocationAbs4   // 4-byte absolute address.
	RelocationPCRel4 // 4-byte PC-relative offset.

	// arm64.
	RelocationAdrPrelPgHi21   // ADRP: 21-bit page-relative offset.
	RelocationAddAbsLo12NC    // ADD: low 12 bits of an absolute address.
	RelocationLdSt64AbsLo12NC // LDR/STR: low 12 bits, scaled by access size.
	RelocationCall26          // BL: 26-bit PC-relative, word-aligned.
	RelocationJump26          // B: 26-bit PC-relative, word-aligned.

	// amd64.
	RelocationPCRel32    // 32-bit PC-relative displacement.
	RelocationPLT32      // 32-bit PC-relative through the procedure linkage table.
	RelocationGOTPCRel32 // 32-bit PC-relative through the global offset table.

	// riscv64.
	RelocationPCRelHi20 // AUIPC: high 20 bits of a PC-relative offset.
	RelocationPCRelLo12 // low 12 bits of the same, on a paired ADDI/load/store.
	RelocationJAL       // JAL: 20-bit PC-relative, 2-byte aligned.
	RelocationCall      // AUIPC+JALR pair, relocated as a unit.

	// s390x.
	RelocationPC32Dbl // 32-bit PC-relative, counted in halfwords.
)

// Relocation records one location in the emitted code that still needs an
// external symbol's address patched in after this function's position (and
// the symbol's) is finally known — a call to another compiled function, or
// a reference to module-level data.
type Relocation struct {
	// Offset is the byte offset within the function's code where the
	// relocation applies.
	Offset int64
	Kind   RelocationKind
	// FuncRefName identifies the target by name; callers resolve it against
	// their own symbol table (this package does not link).
	FuncRefName string
	// Addend is added to the resolved symbol address before encoding.
	Addend int64
}
