package pager

import (
	"fmt"
	"os"
)

// ───────────────────────────────────────────────────────────────────────────
// Inspection & verification tools
// ───────────────────────────────────────────────────────────────────────────
//
// Grounded on the teacher's inspect.go (open the raw file directly, report
// structured info per page/section), adapted from the teacher's B+Tree/WAL/
// superblock layout to tissueroll's Internal/Overflow page format, 200-byte
// metadata header, and undo journal.

// PageInfo holds inspection information about a single on-disk page.
type PageInfo struct {
	Index     uint32
	Type      PageType
	TypeStr   string
	Next      uint32
	Count     uint32
	Free      uint32
	CRCValid  bool
	MaxOrder  uint32
	FreeBound uint32
}

// InspectPage reads a single page directly from dbPath and returns
// detailed information about it.
func InspectPage(dbPath string, index uint32, payloadSize int) (*PageInfo, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, PageSize(payloadSize))
	off := PagePosition(index, payloadSize)
	if _, err := f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", index, err)
	}

	h := UnmarshalHeader(buf)
	return &PageInfo{
		Index:     h.Index,
		Type:      h.Type,
		TypeStr:   h.Type.String(),
		Next:      h.Next,
		Count:     h.Count,
		Free:      h.Free,
		CRCValid:  VerifyPageCRC(buf) == nil,
		MaxOrder:  MaxCellCount(payloadSize),
		FreeBound: uint32(payloadSize),
	}, nil
}

// VerifyDB checks the integrity of an entire database file against the
// invariants in §3.6: magic, whole-page file size and page count against
// nextIndex, per-page CRC and header index, overflow pages holding one
// slot, next pointers that only move forward, and lastInternalIndex naming
// an Internal page. Record headers and lengths are not checked. Returns a
// list of issues found (empty = healthy).
func VerifyDB(dbPath string) ([]string, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var issues []string

	metaBuf := make([]byte, MetadataSize)
	if _, err := f.ReadAt(metaBuf, 0); err != nil {
		return nil, fmt.Errorf("pager: reading metadata: %w", err)
	}
	meta, err := UnmarshalMetadata(metaBuf)
	if err != nil {
		return []string{err.Error()}, nil
	}

	payloadSize := int(meta.PayloadSize)
	pageSize := PageSize(payloadSize)
	dataSize := fi.Size() - int64(MetadataSize)
	if dataSize%int64(pageSize) != 0 {
		issues = append(issues, fmt.Sprintf("file size %d leaves a partial page after the %d-byte metadata header (page size %d)", fi.Size(), MetadataSize, pageSize))
	}
	pageCount := uint32(dataSize / int64(pageSize))
	if pageCount != meta.NextIndex {
		issues = append(issues, fmt.Sprintf("metadata.nextIndex=%d but file holds %d pages", meta.NextIndex, pageCount))
	}

	buf := make([]byte, pageSize)
	for idx := uint32(1); idx <= pageCount; idx++ {
		if _, err := f.ReadAt(buf, PagePosition(idx, payloadSize)); err != nil {
			issues = append(issues, fmt.Sprintf("page %d: read error: %v", idx, err))
			continue
		}
		if err := VerifyPageCRC(buf); err != nil {
			issues = append(issues, err.Error())
		}
		h := UnmarshalHeader(buf)
		if h.Index != idx {
			issues = append(issues, fmt.Sprintf("page %d: header index mismatch (says %d)", idx, h.Index))
		}
		if h.Type == PageTypeOverflow && h.Count != 1 {
			issues = append(issues, fmt.Sprintf("overflow page %d: count=%d, want 1", idx, h.Count))
		}
		if h.Next != 0 && h.Next <= idx {
			issues = append(issues, fmt.Sprintf("page %d: next=%d does not move forward", idx, h.Next))
		}
	}

	if meta.LastInternalIndex != 0 && meta.LastInternalIndex <= pageCount {
		if _, err := f.ReadAt(buf, PagePosition(meta.LastInternalIndex, payloadSize)); err == nil {
			h := UnmarshalHeader(buf)
			if h.Type != PageTypeInternal {
				issues = append(issues, fmt.Sprintf("lastInternalIndex=%d is not an Internal page (type=%s)", meta.LastInternalIndex, h.Type))
			}
		}
	}

	return issues, nil
}

// JournalInfo holds display-friendly journal metadata.
type JournalInfo struct {
	Working          bool
	MaximumPageIndex uint32
	JournalVersion   uint16
	BackedUpPages    int
}

// InspectJournal reads and summarizes a journal file without applying it.
func InspectJournal(journalPath string, chunkSize int) (*JournalInfo, error) {
	f, err := os.Open(journalPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rootBuf := make([]byte, journalRootHeaderSize)
	if _, err := f.ReadAt(rootBuf, 0); err != nil {
		return nil, fmt.Errorf("pager: reading journal root header: %w", err)
	}
	working, maxIdx, version := unmarshalRootHeader(rootBuf)

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	entrySize := int64(journalPageHeaderSize + chunkSize)
	backedUp := 0
	dataStart := int64(journalRootHeaderSize + MetadataSize)
	if fi.Size() > dataStart {
		backedUp = int((fi.Size() - dataStart) / entrySize)
	}

	return &JournalInfo{
		Working:          working,
		MaximumPageIndex: maxIdx,
		JournalVersion:   version,
		BackedUpPages:    backedUp,
	}, nil
}

// InspectMetadata reads and decodes the 200-byte metadata header.
func InspectMetadata(dbPath string) (*Metadata, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, MetadataSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("pager: reading metadata: %w", err)
	}
	return UnmarshalMetadata(buf)
}
