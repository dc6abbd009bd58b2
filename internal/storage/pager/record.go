package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Record header — 40 bytes, followed by `Length` bytes of raw payload
// ───────────────────────────────────────────────────────────────────────────
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       4     Index       page of this record
//  4       4     Order       slot within page
//  8       4     Length      current payload size
//  12      4     MaxLength   capacity reserved on first write
//  16      1     Deleted     flag
//  17      4     AliasIndex
//  21      4     AliasOrder

const (
	recIndexOff     = 0
	recOrderOff     = recIndexOff + 4     // 4
	recLengthOff    = recOrderOff + 4     // 8
	recMaxLengthOff = recLengthOff + 4    // 12
	recDeletedOff   = recMaxLengthOff + 4 // 16
	recAliasIdxOff  = recDeletedOff + 1   // 17
	recAliasOrdOff  = recAliasIdxOff + 4  // 21
)

// RecordHeader is the fixed 40-byte prefix of every stored record.
type RecordHeader struct {
	Index      uint32
	Order      uint32
	Length     uint32
	MaxLength  uint32
	Deleted    bool
	AliasIndex uint32
	AliasOrder uint32
}

// HasAlias reports whether the header points at a forwarding record.
func (h RecordHeader) HasAlias() bool {
	return h.AliasIndex != 0 || h.AliasOrder != 0
}

// MarshalRecordHeader writes h into the first RecordHeaderSize bytes of buf.
func MarshalRecordHeader(h *RecordHeader, buf []byte) {
	binary.BigEndian.PutUint32(buf[recIndexOff:], h.Index)
	binary.BigEndian.PutUint32(buf[recOrderOff:], h.Order)
	binary.BigEndian.PutUint32(buf[recLengthOff:], h.Length)
	binary.BigEndian.PutUint32(buf[recMaxLengthOff:], h.MaxLength)
	if h.Deleted {
		buf[recDeletedOff] = 1
	} else {
		buf[recDeletedOff] = 0
	}
	binary.BigEndian.PutUint32(buf[recAliasIdxOff:], h.AliasIndex)
	binary.BigEndian.PutUint32(buf[recAliasOrdOff:], h.AliasOrder)
}

// UnmarshalRecordHeader reads a RecordHeader from the first
// RecordHeaderSize bytes of buf.
func UnmarshalRecordHeader(buf []byte) RecordHeader {
	return RecordHeader{
		Index:      binary.BigEndian.Uint32(buf[recIndexOff:]),
		Order:      binary.BigEndian.Uint32(buf[recOrderOff:]),
		Length:     binary.BigEndian.Uint32(buf[recLengthOff:]),
		MaxLength:  binary.BigEndian.Uint32(buf[recMaxLengthOff:]),
		Deleted:    buf[recDeletedOff] != 0,
		AliasIndex: binary.BigEndian.Uint32(buf[recAliasIdxOff:]),
		AliasOrder: binary.BigEndian.Uint32(buf[recAliasOrdOff:]),
	}
}

// NewRecord packs a header + payload into one contiguous buffer.
func NewRecord(h RecordHeader, payload []byte) []byte {
	buf := make([]byte, RecordHeaderSize+len(payload))
	MarshalRecordHeader(&h, buf)
	copy(buf[RecordHeaderSize:], payload)
	return buf
}

// Record is a fully decoded record: header plus payload bytes.
type Record struct {
	Header  RecordHeader
	Payload []byte
}
