//go:build !darwin

package jit

// Linux's anonymous RW|EXEC mapping (the only other platform this core
// targets) carries no per-thread write-protect toggle; the mapping
// stays simultaneously writable and executable for its whole lifetime.
func beginCodeWrite() {}
func endCodeWrite()   {}
