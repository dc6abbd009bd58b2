package pager

import (
	"crypto/aes"
	"encoding/hex"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Record-ID cipher: AES-128 in ECB mode over a 14-hex-char (index, order)
// plaintext, rendered as 28 lowercase hex characters.
// ───────────────────────────────────────────────────────────────────────────
//
// ECB mode has no ecosystem implementation in crypto/cipher or
// golang.org/x/crypto — both deliberately omit it as unsafe for general use.
// Since the plaintext here is always exactly one 16-byte block (14 hex
// digits padded to 16 bytes) there is no multi-block pattern-leakage
// concern that ECB would normally create; this is an integrity/obfuscation
// tag, not a confidentiality boundary (see spec's Non-goals). The single
// block is encrypted directly with the stdlib block cipher.

// idPlaintextLen is the number of ASCII hex digits encoded per ID: 7 for
// the page index, 7 for the slot order.
const idPlaintextLen = 14

// EncodeRecordID derives the 28-hex-char record ID for (index, order) under
// the given 16-byte secret key.
func EncodeRecordID(key [SecretKeySize]byte, index, order uint32) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("pager: id cipher: %w", err)
	}
	plain := make([]byte, aes.BlockSize)
	copy(plain, fmt.Appendf(nil, "%07x%07x", index, order))
	cipherText := make([]byte, aes.BlockSize)
	block.Encrypt(cipherText, plain)
	return hex.EncodeToString(cipherText), nil
}

// DecodeRecordID reverses EncodeRecordID. The cipher is unauthenticated: a
// malformed or foreign ID may decode to a plausible-looking but wrong
// (index, order) pair. Callers must treat the result as untrusted until a
// subsequent page/record lookup either succeeds or fails cleanly.
func DecodeRecordID(key [SecretKeySize]byte, recordID string) (index, order uint32, err error) {
	cipherText, err := hex.DecodeString(recordID)
	if err != nil || len(cipherText) != aes.BlockSize {
		return 0, 0, fmt.Errorf("%w: malformed record id %q", ErrInvalidRecord, recordID)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return 0, 0, fmt.Errorf("pager: id cipher: %w", err)
	}
	plain := make([]byte, aes.BlockSize)
	block.Decrypt(plain, cipherText)
	var idxBuf, ordBuf [7]byte
	copy(idxBuf[:], plain[0:7])
	copy(ordBuf[:], plain[7:14])
	idx, err1 := parseHex7(idxBuf)
	ord, err2 := parseHex7(ordBuf)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: non-hex plaintext decoded from %q", ErrInvalidRecord, recordID)
	}
	return idx, ord, nil
}

func parseHex7(b [7]byte) (uint32, error) {
	var v uint32
	for _, c := range b {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
	}
	return v, nil
}
