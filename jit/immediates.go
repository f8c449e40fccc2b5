package jit

// materializeConst64 emits a MOVZ+MOVK cascade (1 to 4 instructions)
// that loads the exact 64-bit pattern value into rd. Used for pointer
// constants (type pointers, string/bytes addresses, native function
// addresses) and for 64-bit integer constants (spec.md §4.3).
func materializeConst64(cb *CodeBuffer, rd Reg, value uint64) {
	materializeConst(cb, true, rd, value)
}

// materializeConst32 emits a MOVZ+MOVK cascade (1 to 2 instructions)
// for a 32-bit value.
func materializeConst32(cb *CodeBuffer, rd Reg, value uint32) {
	materializeConst(cb, false, rd, uint64(value))
}

func materializeConst(cb *CodeBuffer, is64 bool, rd Reg, value uint64) {
	lanes := 4
	if !is64 {
		lanes = 2
		value &= 0xFFFFFFFF
	}

	chunks := make([]uint32, lanes)
	anyNonZero := false
	for i := 0; i < lanes; i++ {
		chunks[i] = uint32((value >> (16 * uint(i))) & 0xFFFF)
		if chunks[i] != 0 {
			anyNonZero = true
		}
	}

	if !anyNonZero {
		emitMovWide(cb, is64, OpMOVZ, rd, 0, 0)
		return
	}

	first := true
	for hw := 0; hw < lanes; hw++ {
		if chunks[hw] == 0 && !(first && hw == lanes-1) {
			continue
		}
		op := OpMOVK
		if first {
			op = OpMOVZ
			first = false
		}
		emitMovWide(cb, is64, op, rd, chunks[hw], uint32(hw))
	}
}

// materializeAbsPointer loads an absolute address into rd with the
// same cascade as materializeConst64: one MOVZ/MOVK per non-zero
// 16-bit lane (always at least one instruction, at most four), so the
// sequence length depends on the address. Used by finalize.go's
// emitVeneer.
func materializeAbsPointer(cb *CodeBuffer, rd Reg, addr uintptr) {
	materializeConst64(cb, rd, uint64(addr))
}
