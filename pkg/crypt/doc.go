// Package crypt implements the legacy packet obfuscation cipher.
//
// The scheme is not cryptographically secure. It exists to interoperate with
// a fixed wire format and must be reproduced bit for bit.
//
// # Key Material
//
// A KeySchedule is a 256-entry byte permutation. It is built once per
// session and direction from the session seed and the per-connection random
// index bytes:
//
//	material := ExpandSeed(seed || conn[0] || conn[1] || direction, 512)
//	table    := BuildTable(material)
//
// Each packet carries two further random index bytes in its header. They are
// combined with the table and the seed by DeriveKeys into a primary and a
// secondary Key, each a KeyLen-byte stream bound to the schedule.
//
// # Transform
//
// Transform runs in place. The forward direction has two stages:
//
//  1. Word substitution. The buffer is walked in 16-bit words. Each word is
//     normalized with Swap16, its high byte is substituted through the table
//     after adding a key byte, its low byte is substituted after XOR with
//     the substituted high byte, and the word is swapped back. An odd
//     trailing byte is substituted on its own.
//  2. Mixing. Every byte is XORed with the key stream and the index of its
//     KeyLen-byte group, then a second key byte is added.
//
// Key.Inverse returns the key that undoes both stages in reverse order.
// Encrypt applies the primary then the secondary key; Decrypt undoes them.
package crypt
