package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Integer / text encoding helpers (§4.6)
// ───────────────────────────────────────────────────────────────────────────
//
// All multi-byte integers on disk are big-endian and unsigned. The widths
// below mirror the spec's 8/16/32/64/128/256-bit catalogue; 128 and 256 bits
// have no arithmetic performed on them anywhere in this module (128 bits is
// the secret key; no on-disk field uses 256 bits) so they are represented as plain byte arrays rather than a big.Int-backed type —
// there is nothing here for an arbitrary-precision library to do.

// PutUint8 and Uint8 exist only for symmetry with the wider helpers; Go's
// byte slices already are uint8, so these are identity operations.
func PutUint8(buf []byte, v uint8) { buf[0] = v }
func Uint8(buf []byte) uint8       { return buf[0] }

func PutUint16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }
func Uint16(buf []byte) uint16       { return binary.BigEndian.Uint16(buf) }

func PutUint32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }
func Uint32(buf []byte) uint32       { return binary.BigEndian.Uint32(buf) }

func PutUint64(buf []byte, v uint64) { binary.BigEndian.PutUint64(buf, v) }
func Uint64(buf []byte) uint64       { return binary.BigEndian.Uint64(buf) }

// PutUint128 and Uint128 treat the 16-byte field as an opaque blob (used
// only for the AES secret key).
func PutUint128(buf []byte, v [16]byte) { copy(buf[:16], v[:]) }
func Uint128(buf []byte) (v [16]byte)   { copy(v[:], buf[:16]); return }

// PutUint256 and Uint256 treat the 32-byte field as an opaque blob; no
// on-disk structure of this module uses them.
func PutUint256(buf []byte, v [32]byte) { copy(buf[:32], v[:]) }
func Uint256(buf []byte) (v [32]byte)   { copy(v[:], buf[:32]); return }

// EncodeText returns text as its raw byte encoding. It does not validate
// UTF-8; the core never interprets payload structure.
func EncodeText(s string) []byte { return []byte(s) }

// DecodeText returns the raw bytes as a string. It does not validate
// UTF-8; validity is the caller's concern.
func DecodeText(b []byte) string { return string(b) }
