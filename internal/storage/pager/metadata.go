package pager

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Metadata — the 200-byte file header at offset 0
// ───────────────────────────────────────────────────────────────────────────
//
// Layout (all big-endian, offsets cumulative, not padded):
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       10    Magic              "TissueRoll"
//  10      1     MajorVersion
//  11      1     MinorVersion
//  12      1     PatchVersion
//  13      4     NextIndex          highest page index in use
//  17      4     PayloadSize
//  21      8     Timestamp          ms since epoch at creation
//  29      16    SecretKey          AES-ECB key for record IDs
//  45      8     AutoIncrement      monotonic document counter
//  53      4     Count              live record count
//  57      4     LastInternalIndex  index of the currently-filled Internal page
//
// Everything past offset 61 up to MetadataSize is reserved and zero-filled.

const (
	// Magic identifies a valid tissueroll database file.
	Magic = "TissueRoll"

	// CurrentMajorVersion, CurrentMinorVersion, CurrentPatchVersion are the
	// format versions written by this implementation.
	CurrentMajorVersion uint8 = 1
	CurrentMinorVersion uint8 = 0
	CurrentPatchVersion uint8 = 0

	mdMagicOff             = 0
	mdMajorVersionOff      = mdMagicOff + 10        // 10
	mdMinorVersionOff      = mdMajorVersionOff + 1  // 11
	mdPatchVersionOff      = mdMinorVersionOff + 1  // 12
	mdNextIndexOff         = mdPatchVersionOff + 1  // 13
	mdPayloadSizeOff       = mdNextIndexOff + 4     // 17
	mdTimestampOff         = mdPayloadSizeOff + 4   // 21
	mdSecretKeyOff         = mdTimestampOff + 8     // 29
	mdAutoIncrementOff     = mdSecretKeyOff + 16    // 45
	mdCountOff             = mdAutoIncrementOff + 8 // 53
	mdLastInternalIndexOff = mdCountOff + 4         // 57
	mdEnd                  = mdLastInternalIndexOff + 4
)

// SecretKeySize is the width of the AES-128 key stored in the metadata.
const SecretKeySize = 16

// Metadata holds the parsed contents of the 200-byte file header.
type Metadata struct {
	MajorVersion      uint8
	MinorVersion      uint8
	PatchVersion      uint8
	NextIndex         uint32
	PayloadSize       uint32
	Timestamp         uint64
	SecretKey         [SecretKeySize]byte
	AutoIncrement     uint64
	Count             uint32
	LastInternalIndex uint32
}

// NewMetadata builds a fresh Metadata for a brand-new database file, with a
// freshly generated secret key.
func NewMetadata(payloadSize int, nowMillis uint64) (*Metadata, error) {
	m := &Metadata{
		MajorVersion: CurrentMajorVersion,
		MinorVersion: CurrentMinorVersion,
		PatchVersion: CurrentPatchVersion,
		PayloadSize:  uint32(payloadSize),
		Timestamp:    nowMillis,
	}
	if _, err := rand.Read(m.SecretKey[:]); err != nil {
		return nil, fmt.Errorf("pager: generating secret key: %w", err)
	}
	return m, nil
}

// Marshal serializes m into a MetadataSize buffer.
func (m *Metadata) Marshal() []byte {
	buf := make([]byte, MetadataSize)
	copy(buf[mdMagicOff:mdMagicOff+10], Magic)
	buf[mdMajorVersionOff] = m.MajorVersion
	buf[mdMinorVersionOff] = m.MinorVersion
	buf[mdPatchVersionOff] = m.PatchVersion
	binary.BigEndian.PutUint32(buf[mdNextIndexOff:], m.NextIndex)
	binary.BigEndian.PutUint32(buf[mdPayloadSizeOff:], m.PayloadSize)
	binary.BigEndian.PutUint64(buf[mdTimestampOff:], m.Timestamp)
	copy(buf[mdSecretKeyOff:mdSecretKeyOff+SecretKeySize], m.SecretKey[:])
	binary.BigEndian.PutUint64(buf[mdAutoIncrementOff:], m.AutoIncrement)
	binary.BigEndian.PutUint32(buf[mdCountOff:], m.Count)
	binary.BigEndian.PutUint32(buf[mdLastInternalIndexOff:], m.LastInternalIndex)
	return buf
}

// UnmarshalMetadata decodes the 200-byte header from buf, validating the
// magic string. An invalid magic is the one condition spec.md requires to
// fail `open` outright, leaving the file untouched.
func UnmarshalMetadata(buf []byte) (*Metadata, error) {
	if len(buf) < MetadataSize {
		return nil, fmt.Errorf("pager: metadata buffer too small: %d bytes", len(buf))
	}
	if string(buf[mdMagicOff:mdMagicOff+10]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalid, buf[mdMagicOff:mdMagicOff+10])
	}
	m := &Metadata{
		MajorVersion:      buf[mdMajorVersionOff],
		MinorVersion:      buf[mdMinorVersionOff],
		PatchVersion:      buf[mdPatchVersionOff],
		NextIndex:         binary.BigEndian.Uint32(buf[mdNextIndexOff:]),
		PayloadSize:       binary.BigEndian.Uint32(buf[mdPayloadSizeOff:]),
		Timestamp:         binary.BigEndian.Uint64(buf[mdTimestampOff:]),
		AutoIncrement:     binary.BigEndian.Uint64(buf[mdAutoIncrementOff:]),
		Count:             binary.BigEndian.Uint32(buf[mdCountOff:]),
		LastInternalIndex: binary.BigEndian.Uint32(buf[mdLastInternalIndexOff:]),
	}
	copy(m.SecretKey[:], buf[mdSecretKeyOff:mdSecretKeyOff+SecretKeySize])
	return m, nil
}

// PagePosition returns the absolute byte offset of page idx (1-based).
func PagePosition(idx uint32, payloadSize int) int64 {
	return int64(MetadataSize) + int64(PageSize(payloadSize))*int64(idx-1)
}

// PayloadPosition returns the absolute byte offset of page idx's payload.
func PayloadPosition(idx uint32, payloadSize int) int64 {
	return PagePosition(idx, payloadSize) + PageHeaderSize
}

// CellPosition returns the absolute byte offset of cell `order` (1-based)
// within page idx's backward-growing cell directory.
func CellPosition(idx uint32, order uint32, payloadSize int) int64 {
	pageEnd := PagePosition(idx, payloadSize) + int64(PageSize(payloadSize))
	return pageEnd - int64(CellSize)*int64(order)
}
