package pager

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Slotted page layout
// ───────────────────────────────────────────────────────────────────────────
//
// Records grow forward from the start of the payload (immediately after the
// 100-byte page header). A cell directory grows backward from the end of
// the page: cell `order` (1-based) is a 4-byte big-endian offset, measured
// from the start of the payload, stored at `len(page) − 4·order`.
//
// This is the mirror image of the teacher's own slotted-page layout (there
// records grow backward and slots grow forward); the direction here follows
// this format's on-disk contract exactly. All offsets in this file are
// page-local (relative to the start of the page buffer, not the file).

// MaxCellCount returns the structural upper bound on live cells per page:
// every cell costs 4 bytes of directory plus at least a 40-byte record
// header, so count is bounded even before any payload bytes are considered.
func MaxCellCount(payloadSize int) uint32 {
	return uint32((payloadSize - CellSize) / (RecordHeaderSize + CellSize))
}

// cellOffsetLocal returns the page-local byte offset of cell `order`'s
// 4-byte directory entry.
func cellOffsetLocal(payloadSize int, order uint32) int {
	return PageSize(payloadSize) - int(order)*CellSize
}

// writeCellLocal stores recordOffset (relative to the start of the payload)
// into cell `order`'s directory entry.
func writeCellLocal(page []byte, payloadSize int, order uint32, recordOffset uint32) {
	off := cellOffsetLocal(payloadSize, order)
	PutUint32(page[off:off+CellSize], recordOffset)
}

// readCellLocal returns the payload-relative record offset stored in cell
// `order`.
func readCellLocal(page []byte, payloadSize int, order uint32) uint32 {
	off := cellOffsetLocal(payloadSize, order)
	return Uint32(page[off : off+CellSize])
}

// forwardUsed returns the number of payload bytes already consumed by
// records written forward from the payload start, derived from the page
// header the way the source tracks it: `free` is decremented by
// `CellSize + recordSize` on every append, starting from `payloadSize`, so
// the bytes actually written forward are recoverable as
// `payloadSize − CellSize·count − free`.
func forwardUsed(h Header, payloadSize int) uint32 {
	return uint32(payloadSize) - uint32(CellSize)*h.Count - h.Free
}

// recordUsage is the bytes a record of `recordSize` (header+payload)
// consumes out of a page's `free` budget: the record itself plus its cell.
func recordUsage(recordSize int) uint32 {
	return uint32(CellSize + recordSize)
}

// AppendRecord writes record (a full header+payload buffer, as built by
// NewRecord) into page at the next forward slot, updates the page header's
// Count and Free fields in place, and returns the assigned 1-based order.
// Callers must have already verified `h.Free >= recordUsage(len(record))`.
func AppendRecord(page []byte, payloadSize int, h *Header, record []byte) (order uint32, err error) {
	usage := recordUsage(len(record))
	if usage > h.Free {
		return 0, fmt.Errorf("pager: page %d out of space: need %d, have %d", h.Index, usage, h.Free)
	}
	offset := forwardUsed(*h, payloadSize)
	if int(offset)+len(record) > payloadSize {
		return 0, fmt.Errorf("pager: page %d payload overflow at offset %d", h.Index, offset)
	}
	copy(page[PageHeaderSize+int(offset):], record)
	order = h.Count + 1
	writeCellLocal(page, payloadSize, order, offset)
	h.Count = order
	h.Free -= usage
	MarshalHeader(h, page)
	SetPageCRC(page)
	return order, nil
}

// RecordAt decodes the record stored at cell `order` of page, which must
// already have its header parsed into h.
func RecordAt(page []byte, payloadSize int, h Header, order uint32) (Record, error) {
	if order == 0 || order > h.Count {
		return Record{}, fmt.Errorf("%w: order %d out of range (count=%d)", ErrNotFound, order, h.Count)
	}
	offset := readCellLocal(page, payloadSize, order)
	start := PageHeaderSize + int(offset)
	if start+RecordHeaderSize > len(page) {
		return Record{}, fmt.Errorf("pager: corrupt cell %d on page %d", order, h.Index)
	}
	rh := UnmarshalRecordHeader(page[start : start+RecordHeaderSize])
	payloadStart := start + RecordHeaderSize
	payloadEnd := payloadStart + int(rh.Length)
	if payloadEnd > len(page) {
		return Record{}, fmt.Errorf("pager: corrupt record length on page %d order %d", h.Index, order)
	}
	payload := make([]byte, rh.Length)
	copy(payload, page[payloadStart:payloadEnd])
	return Record{Header: rh, Payload: payload}, nil
}

// RecordHeaderAt decodes just the 40-byte header at cell `order`, without
// copying the payload. Update and Delete use it to rewrite a header in place.
func RecordHeaderAt(page []byte, payloadSize int, h Header, order uint32) (RecordHeader, int, error) {
	if order == 0 || order > h.Count {
		return RecordHeader{}, 0, fmt.Errorf("%w: order %d out of range (count=%d)", ErrNotFound, order, h.Count)
	}
	offset := readCellLocal(page, payloadSize, order)
	start := PageHeaderSize + int(offset)
	if start+RecordHeaderSize > len(page) {
		return RecordHeader{}, 0, fmt.Errorf("pager: corrupt cell %d on page %d", order, h.Index)
	}
	return UnmarshalRecordHeader(page[start : start+RecordHeaderSize]), start, nil
}

// OverwriteRecordHeader rewrites just the 40-byte header at cell `order` in
// place, leaving the payload untouched. Used by delete (deleted flag) and
// update Case A (alias fields).
func OverwriteRecordHeader(page []byte, payloadSize int, h Header, order uint32, rh RecordHeader) error {
	offset := readCellLocal(page, payloadSize, order)
	start := PageHeaderSize + int(offset)
	if start+RecordHeaderSize > len(page) {
		return fmt.Errorf("pager: corrupt cell %d on page %d", order, h.Index)
	}
	MarshalRecordHeader(&rh, page[start:start+RecordHeaderSize])
	SetPageCRC(page)
	return nil
}
