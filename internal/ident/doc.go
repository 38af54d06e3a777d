// Package ident generates time-ordered delivery identifiers.
//
// # Format
//
// Identifiers use the UUIDv7 layout:
//
//	[48 bits unix ms][4 bits version][12 bits sequence][2 bits variant][62 bits random]
//
// The canonical lowercase string form sorts the same way as the raw bytes, so
// both can be used as ordered storage keys.
//
// # Monotonicity
//
// A Generator hands out strictly increasing identifiers:
//   - identifiers minted in the same millisecond are ordered by the sequence;
//   - if the clock regresses, the generator pins to the last millisecond it saw;
//   - if the sequence is exhausted within a millisecond, the generator moves to
//     the next millisecond instead of wrapping.
//
// The random tail keeps identifiers from separate processes apart.
package ident
