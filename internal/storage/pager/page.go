// Package pager implements the paged record engine: page layout, record
// encoding/decoding, overflow chaining, record-ID encryption, and the crash
// journal that together back the tissueroll on-disk format.
//
// The storage format consists of a 200-byte metadata header followed by
// fixed-size pages (default payload 4096 bytes). Each page carries a 100-byte
// header and holds records that grow forward from the start of the payload,
// addressed by a cell directory that grows backward from the end of the
// page. Large records overflow into a chain of dedicated Overflow pages.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// DefaultPayloadSize is the default per-page payload size in bytes.
	DefaultPayloadSize = 4096

	// MinPayloadSize is the smallest payload size the format allows.
	MinPayloadSize = 5

	// MetadataSize is the size of the file-level metadata header.
	MetadataSize = 200

	// PageHeaderSize is the size of the common page header in bytes.
	// Layout (all big-endian):
	//   [0:4]   Type   (uint32)
	//   [4:8]   Index  (uint32)
	//   [8:12]  Next   (uint32)
	//   [12:16] Count  (uint32)
	//   [16:20] Free   (uint32)
	//   [20:96] Reserved (zero-padded)
	//   [96:100] CRC32 (uint32) — ambient integrity check, not part of spec layout proper
	PageHeaderSize = 100

	// pageCRCOffset is where the trailing CRC32 lives within the header.
	pageCRCOffset = PageHeaderSize - 4

	// CellSize is the width of one cell-directory entry.
	CellSize = 4

	// RecordHeaderSize is the size of a record's fixed header.
	RecordHeaderSize = 40
)

// PageType identifies the kind of data stored in a page.
type PageType uint32

const (
	PageTypeUnknown        PageType = 0
	PageTypeInternal       PageType = 1
	PageTypeOverflow       PageType = 2
	PageTypeSystemReserved PageType = 3
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeUnknown:
		return "Unknown"
	case PageTypeInternal:
		return "Internal"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeSystemReserved:
		return "SystemReserved"
	default:
		return fmt.Sprintf("PageType(%d)", uint32(pt))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Page header
// ───────────────────────────────────────────────────────────────────────────

// Header is the 100-byte header present at the start of every page.
type Header struct {
	Type  PageType
	Index uint32
	Next  uint32
	Count uint32
	Free  uint32
}

// MarshalHeader writes h into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *Header, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("pager: buffer too small for page header")
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[4:8], h.Index)
	binary.BigEndian.PutUint32(buf[8:12], h.Next)
	binary.BigEndian.PutUint32(buf[12:16], h.Count)
	binary.BigEndian.PutUint32(buf[16:20], h.Free)
	for i := 20; i < pageCRCOffset; i++ {
		buf[i] = 0
	}
}

// UnmarshalHeader reads a Header from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) Header {
	return Header{
		Type:  PageType(binary.BigEndian.Uint32(buf[0:4])),
		Index: binary.BigEndian.Uint32(buf[4:8]),
		Next:  binary.BigEndian.Uint32(buf[8:12]),
		Count: binary.BigEndian.Uint32(buf[12:16]),
		Free:  binary.BigEndian.Uint32(buf[16:20]),
	}
}

// ───────────────────────────────────────────────────────────────────────────
// CRC helpers
// ───────────────────────────────────────────────────────────────────────────

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the trailing
// CRC field as zero during computation. This is an ambient integrity check
// carried from the teacher's page format; it is independent of the record-ID
// cipher's (unauthenticated) integrity tag.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:pageCRCOffset])
	h.Write(page[pageCRCOffset+4:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	c := ComputePageCRC(page)
	binary.BigEndian.PutUint32(page[pageCRCOffset:PageHeaderSize], c)
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.BigEndian.Uint32(page[pageCRCOffset:PageHeaderSize])
	computed := ComputePageCRC(page)
	if stored != computed {
		idx := binary.BigEndian.Uint32(page[4:8])
		return fmt.Errorf("pager: CRC mismatch on page %d: stored=%08x computed=%08x", idx, stored, computed)
	}
	return nil
}

// PageSize returns the total on-disk size of a page for the given payload size.
func PageSize(payloadSize int) int {
	return PageHeaderSize + payloadSize
}

// NewPage allocates a zeroed page buffer of the given payload size, writes
// its header and CRC, and returns it.
func NewPage(payloadSize int, pt PageType, index uint32) []byte {
	buf := make([]byte, PageSize(payloadSize))
	h := &Header{Type: pt, Index: index, Free: uint32(payloadSize)}
	MarshalHeader(h, buf)
	SetPageCRC(buf)
	return buf
}
