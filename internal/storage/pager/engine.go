package pager

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/SimonWaldherr/tissueroll/internal/storage"
)

// ───────────────────────────────────────────────────────────────────────────
// Engine — the record-level API over a VirtualEngine (§4.3)
// ───────────────────────────────────────────────────────────────────────────

// Options configures a new or reopened Engine.
type Options struct {
	PayloadSize   int
	CacheLifespan time.Duration
}

// DefaultOptions mirrors §6.1's create/open defaults.
func DefaultOptions() Options {
	return Options{
		PayloadSize:   DefaultPayloadSize,
		CacheLifespan: 3 * time.Minute,
	}
}

type idPair struct {
	Index uint32
	Order uint32
}

// Engine is the paged record store: metadata, page layout, record
// encoding, overflow chaining, and ID encryption, all addressed through a
// VirtualEngine rather than talking to a Backend directly.
type Engine struct {
	v           *storage.VirtualEngine
	payloadSize int

	metaMu sync.Mutex
	meta   Metadata

	pageCache   *storage.Cache[[]byte]
	headerCache *storage.Cache[Header]
	recordCache *storage.Cache[Record]
	encodeCache *storage.Cache[string]
	decodeCache *storage.Cache[idPair]

	closing bool
}

// NewEngine constructs an Engine over an already-positioned VirtualEngine
// whose first MetadataSize bytes are meta.
func NewEngine(v *storage.VirtualEngine, meta Metadata, opts Options) *Engine {
	if opts.PayloadSize <= 0 {
		opts.PayloadSize = int(meta.PayloadSize)
	}
	return &Engine{
		v:           v,
		payloadSize: opts.PayloadSize,
		meta:        meta,
		pageCache:   storage.NewCache[[]byte](opts.CacheLifespan),
		headerCache: storage.NewCache[Header](opts.CacheLifespan),
		recordCache: storage.NewCache[Record](opts.CacheLifespan),
		encodeCache: storage.NewCache[string](opts.CacheLifespan),
		decodeCache: storage.NewCache[idPair](opts.CacheLifespan),
	}
}

func pageKey(idx uint32) string { return strconv.FormatUint(uint64(idx), 10) }
func recordKey(idx, order uint32) string {
	return strconv.FormatUint(uint64(idx), 10) + "/" + strconv.FormatUint(uint64(order), 10)
}

// Metadata returns a copy of the current in-memory metadata.
func (e *Engine) Metadata() Metadata {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.meta
}

// ReplaceMetadata overwrites the engine's in-memory metadata, used after a
// journal restore reloads it from disk.
func (e *Engine) ReplaceMetadata(m Metadata) {
	e.metaMu.Lock()
	e.meta = m
	e.metaMu.Unlock()
	e.pageCache.InvalidateAll()
	e.headerCache.InvalidateAll()
	e.recordCache.InvalidateAll()
}

func (e *Engine) persistMetadataField(off, size int) error {
	buf := e.meta.Marshal()
	_, err := e.v.Update(int64(off), buf[off:off+size])
	return err
}

// getPage returns the full on-disk bytes of page idx, through the page
// cache.
func (e *Engine) getPage(idx uint32) ([]byte, error) {
	return e.pageCache.Get(pageKey(idx), func() ([]byte, error) {
		pos := PagePosition(idx, e.payloadSize)
		buf, err := e.v.Read(pos, int64(PageSize(e.payloadSize)))
		if err != nil {
			return nil, err
		}
		if len(buf) < PageSize(e.payloadSize) {
			return nil, fmt.Errorf("pager: short read of page %d", idx)
		}
		return buf, nil
	})
}

// getHeader returns the parsed header of page idx, through the header
// cache. Each time the header is parsed on a cache miss, it registers itself
// as a dependent of the page cache's entry for idx (§4.7's "before update"
// hook), so putPage's Set on that entry invalidates this header directly
// through the dependency graph instead of a blanket invalidation.
func (e *Engine) getHeader(idx uint32) (Header, error) {
	key := pageKey(idx)
	return e.headerCache.Get(key, func() (Header, error) {
		page, err := e.getPage(idx)
		if err != nil {
			return Header{}, err
		}
		e.pageCache.AddDependency(key, func() { e.headerCache.Invalidate(key) })
		return UnmarshalHeader(page), nil
	})
}

// putPage writes page back through the virtual engine and refreshes the
// page cache. Set cascades through the dependency edges registered by
// getHeader and getRecord (§4.7), invalidating exactly the headers and
// stitched records that were derived from this page rather than clearing
// the header/record caches wholesale.
func (e *Engine) putPage(idx uint32, page []byte) error {
	pos := PagePosition(idx, e.payloadSize)
	if _, err := e.v.Update(pos, page); err != nil {
		return err
	}
	e.pageCache.Set(pageKey(idx), page)
	return nil
}

// appendPage appends a brand-new page and seeds its cache entry.
func (e *Engine) appendPage(page []byte) error {
	if err := e.v.Append(page); err != nil {
		return err
	}
	idx := UnmarshalHeader(page).Index
	e.pageCache.Set(pageKey(idx), page)
	return nil
}

// addEmptyPage implements §4.3.3: allocate a fresh page of the given type,
// bump metadata.NextIndex, and optionally bump lastInternalIndex.
func (e *Engine) addEmptyPage(pt PageType, bumpInternalIndex bool) (uint32, error) {
	e.metaMu.Lock()
	e.meta.NextIndex++
	newIdx := e.meta.NextIndex
	e.metaMu.Unlock()
	if err := e.persistMetadataField(mdNextIndexOff, 4); err != nil {
		return 0, err
	}

	page := NewPage(e.payloadSize, pt, newIdx)
	if err := e.appendPage(page); err != nil {
		return 0, err
	}

	if pt == PageTypeInternal && bumpInternalIndex {
		e.metaMu.Lock()
		e.meta.LastInternalIndex = newIdx
		e.metaMu.Unlock()
		if err := e.persistMetadataField(mdLastInternalIndexOff, 4); err != nil {
			return 0, err
		}
	}
	return newIdx, nil
}

// recordIDFor encrypts (idx, order) into a record ID string, through the
// encode cache.
func (e *Engine) recordIDFor(idx, order uint32) (string, error) {
	key := e.Metadata().SecretKey
	return e.encodeCache.Get(recordKey(idx, order), func() (string, error) {
		return EncodeRecordID(key, idx, order)
	})
}

// decodeRecordID decrypts a record ID into (idx, order), through the
// decode cache.
func (e *Engine) decodeRecordID(recordID string) (uint32, uint32, error) {
	key := e.Metadata().SecretKey
	p, err := e.decodeCache.Get(recordID, func() (idPair, error) {
		idx, order, err := DecodeRecordID(key, recordID)
		if err != nil {
			return idPair{}, err
		}
		return idPair{Index: idx, Order: order}, nil
	})
	return p.Index, p.Order, err
}

// readFullRecord reconstructs the complete header+payload bytes for the
// record at (idx, order), walking an overflow chain if the page at idx is
// an Internal page whose Next field points past it (§4.3.4 step 8). It
// also returns every page index the record's bytes were read from, so the
// caller can register a dependency against each one (§4.7).
func (e *Engine) readFullRecord(idx, order uint32) (Record, []uint32, error) {
	h, err := e.getHeader(idx)
	if err != nil {
		return Record{}, nil, err
	}
	if h.Next == 0 {
		page, err := e.getPage(idx)
		if err != nil {
			return Record{}, nil, err
		}
		rec, err := RecordAt(page, e.payloadSize, h, order)
		return rec, []uint32{idx}, err
	}
	if order != 1 {
		return Record{}, nil, fmt.Errorf("pager: overflow head %d has no slot %d", idx, order)
	}

	maxFree := MaximumFreeSize(e.payloadSize)
	var raw []byte
	var pages []uint32
	totalNeeded := -1
	curIdx := idx
	for {
		page, err := e.getPage(curIdx)
		if err != nil {
			return Record{}, nil, err
		}
		pages = append(pages, curIdx)
		curHeader := UnmarshalHeader(page)
		raw = append(raw, PageChunk(page, maxFree)...)
		if totalNeeded < 0 && len(raw) >= RecordHeaderSize {
			rh := UnmarshalRecordHeader(raw[:RecordHeaderSize])
			totalNeeded = RecordHeaderSize + int(rh.Length)
		}
		if totalNeeded >= 0 && len(raw) >= totalNeeded {
			break
		}
		if curHeader.Next == 0 {
			return Record{}, nil, fmt.Errorf("pager: truncated overflow chain at page %d", curIdx)
		}
		curIdx = curHeader.Next
	}
	raw = raw[:totalNeeded]
	rh := UnmarshalRecordHeader(raw[:RecordHeaderSize])
	payload := make([]byte, rh.Length)
	copy(payload, raw[RecordHeaderSize:totalNeeded])
	return Record{Header: rh, Payload: payload}, pages, nil
}

// getRecord returns the stitched record at (idx, order), through the
// record cache. On a real computation it registers itself as a dependent
// of every page its bytes came from, so that rewriting any page in an
// overflow chain invalidates this entry through the dependency graph
// (§4.7) instead of a blanket InvalidateAll.
func (e *Engine) getRecord(idx, order uint32) (Record, error) {
	key := recordKey(idx, order)
	return e.recordCache.Get(key, func() (Record, error) {
		rec, pages, err := e.readFullRecord(idx, order)
		if err != nil {
			return Record{}, err
		}
		for _, pidx := range pages {
			e.pageCache.AddDependency(pageKey(pidx), func() { e.recordCache.Invalidate(key) })
		}
		return rec, nil
	})
}

// ───────────────────────────────────────────────────────────────────────────
// put (§4.3.4)
// ───────────────────────────────────────────────────────────────────────────

// Put inserts D as a new record and returns its record ID. If
// autoIncrement is true, metadata.AutoIncrement and metadata.Count are
// both bumped (the public Put always passes true; internal re-puts issued
// by update's Case A pass false).
func (e *Engine) Put(data []byte, autoIncrement bool) (string, error) {
	if e.closing {
		return "", ErrClosing
	}
	idx := e.Metadata().LastInternalIndex
	if idx == 0 {
		var err error
		idx, err = e.addEmptyPage(PageTypeInternal, true)
		if err != nil {
			return "", err
		}
	}

	if autoIncrement {
		e.metaMu.Lock()
		e.meta.AutoIncrement++
		e.meta.Count++
		e.metaMu.Unlock()
		if err := e.persistMetadataField(mdAutoIncrementOff, 8); err != nil {
			return "", err
		}
		if err := e.persistMetadataField(mdCountOff, 4); err != nil {
			return "", err
		}
	}

	h, err := e.getHeader(idx)
	if err != nil {
		return "", err
	}

	recordSize := RecordHeaderSize + len(data)
	recordUse := recordUsage(recordSize)

	if h.Free >= recordUse {
		order, err := e.appendInline(idx, h, data)
		if err != nil {
			return "", err
		}
		return e.recordIDFor(idx, order)
	}

	usedPageWasEmpty := h.Count == 0
	if !usedPageWasEmpty {
		idx, err = e.addEmptyPage(PageTypeInternal, true)
		if err != nil {
			return "", err
		}
		h, err = e.getHeader(idx)
		if err != nil {
			return "", err
		}
	}

	chunks := ChunkCount(recordSize, e.payloadSize)
	if chunks == 1 {
		order, err := e.appendInline(idx, h, data)
		if err != nil {
			return "", err
		}
		return e.recordIDFor(idx, order)
	}

	id, err := e.putOverflow(idx, h, data, recordSize)
	if err != nil {
		return "", err
	}

	if usedPageWasEmpty {
		// The triggering page had never been used for an inline put before
		// this overflow chain consumed it as the chain head: start the next
		// put on a brand new Internal page (§4.3.4 step 10).
		if _, err := e.addEmptyPage(PageTypeInternal, true); err != nil {
			return "", err
		}
	}
	return id, nil
}

// appendInline writes data as a plain, single-page record into page idx,
// which must already have enough free space.
func (e *Engine) appendInline(idx uint32, h Header, data []byte) (uint32, error) {
	page, err := e.getPage(idx)
	if err != nil {
		return 0, err
	}
	rh := RecordHeader{
		Index:     idx,
		Order:     h.Count + 1,
		Length:    uint32(len(data)),
		MaxLength: uint32(len(data)),
	}
	rec := NewRecord(rh, data)
	order, err := AppendRecord(page, e.payloadSize, &h, rec)
	if err != nil {
		return 0, err
	}
	if err := e.putPage(idx, page); err != nil {
		return 0, err
	}
	return order, nil
}

// putOverflow implements §4.3.4 steps 6-9: split a too-large record across
// a chain headed by the Internal page idx, followed by Overflow pages.
func (e *Engine) putOverflow(idx uint32, h Header, data []byte, recordSize int) (string, error) {
	order := h.Count + 1
	rh := RecordHeader{Index: idx, Order: order, Length: uint32(len(data)), MaxLength: uint32(len(data))}
	full := NewRecord(rh, data)
	chunks := SplitChunks(full, e.payloadSize)

	curIdx := idx
	for i, chunk := range chunks {
		page, err := e.getPage(curIdx)
		if err != nil {
			return "", err
		}
		curHeader := UnmarshalHeader(page)
		SetPagePayload(page, e.payloadSize, &curHeader, chunk)

		last := i == len(chunks)-1
		if !last {
			nextIdx, err := e.addEmptyPage(PageTypeOverflow, false)
			if err != nil {
				return "", err
			}
			curHeader.Next = nextIdx
			if curIdx != idx {
				curHeader.Type = PageTypeOverflow
			}
			MarshalHeader(&curHeader, page)
			SetPageCRC(page)
			if err := e.putPage(curIdx, page); err != nil {
				return "", err
			}
			curIdx = nextIdx
		} else {
			curHeader.Next = 0
			if curIdx != idx {
				curHeader.Type = PageTypeOverflow
			}
			MarshalHeader(&curHeader, page)
			SetPageCRC(page)
			if err := e.putPage(curIdx, page); err != nil {
				return "", err
			}
		}
	}

	// Re-stamp the head page Internal/count=1/free=0 (§4.3.4 step 9): its
	// Next field (set above) already points at the first Overflow page.
	headPage, err := e.getPage(idx)
	if err != nil {
		return "", err
	}
	headHeader := UnmarshalHeader(headPage)
	headHeader.Type = PageTypeInternal
	headHeader.Count = 1
	headHeader.Free = 0
	MarshalHeader(&headHeader, headPage)
	SetPageCRC(headPage)
	if err := e.putPage(idx, headPage); err != nil {
		return "", err
	}

	return e.recordIDFor(idx, order)
}

// Batch inserts every text and returns their record IDs in order.
func (e *Engine) Batch(items [][]byte) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := e.Put(item, true)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ───────────────────────────────────────────────────────────────────────────
// pick (§4.3.5)
// ───────────────────────────────────────────────────────────────────────────

// Picked is the result of a successful Pick.
type Picked struct {
	PageIndex uint32
	Order     uint32
	Record    Record
}

// Pick resolves recordID to its record, following an alias if followAlias
// is set (at most one hop — update enforces the invariant that alias
// chains never exceed length one).
func (e *Engine) Pick(recordID string, followAlias bool) (Picked, error) {
	if e.closing {
		return Picked{}, ErrClosing
	}
	idx, order, err := e.decodeRecordID(recordID)
	if err != nil {
		return Picked{}, err
	}
	return e.pickAt(idx, order, followAlias)
}

func (e *Engine) pickAt(idx, order uint32, followAlias bool) (Picked, error) {
	rec, err := e.getRecord(idx, order)
	if err != nil {
		return Picked{}, err
	}
	if followAlias && rec.Header.HasAlias() {
		return e.pickAt(rec.Header.AliasIndex, rec.Header.AliasOrder, false)
	}
	if rec.Header.Deleted {
		return Picked{}, ErrAlreadyDeleted
	}
	return Picked{PageIndex: idx, Order: order, Record: rec}, nil
}

// Exists reports whether recordID resolves to a live, non-deleted record.
func (e *Engine) Exists(recordID string) bool {
	_, err := e.Pick(recordID, false)
	return err == nil
}

// ───────────────────────────────────────────────────────────────────────────
// update (§4.3.6)
// ───────────────────────────────────────────────────────────────────────────

// Update rewrites the record named by recordID with newData, returning the
// (possibly new, aliased) record ID.
func (e *Engine) Update(recordID string, newData []byte) (string, error) {
	if e.closing {
		return "", ErrClosing
	}
	head, err := e.Pick(recordID, false)
	if err != nil {
		return "", err
	}
	tail := head
	if head.Record.Header.HasAlias() {
		tail, err = e.Pick(recordID, true)
		if err != nil {
			return "", err
		}
	}

	newRH := RecordHeader{
		Index:     tail.PageIndex,
		Order:     tail.Order,
		Length:    uint32(len(newData)),
		MaxLength: uint32(len(newData)),
	}
	newRecordSize := RecordHeaderSize + len(newData)

	tailHeader, err := e.getHeader(tail.PageIndex)
	if err != nil {
		return "", err
	}
	isInternalTail := tailHeader.Next == 0

	// Growth is measured against the reserved capacity (MaxLength, which
	// Case C keeps when a payload shrinks), not the current payload length.
	oldRecordSize := RecordHeaderSize + int(tail.Record.Header.MaxLength)
	grew := oldRecordSize < newRecordSize

	switch {
	case grew && isInternalTail:
		return e.updateCaseA(head, tail, newData)
	case grew:
		return recordID, e.updateCaseB(tail, newRH, newData)
	default:
		newRH.MaxLength = tail.Record.Header.MaxLength
		return recordID, e.updateCaseC(tail, isInternalTail, newRH, newData)
	}
}

// updateCaseA handles a grown record whose tail lives on a plain Internal
// page with room to spare elsewhere: re-put the new payload as a fresh
// record and alias the head to it (§4.3.6 Case A).
func (e *Engine) updateCaseA(head, tail Picked, newData []byte) (string, error) {
	newID, err := e.Put(newData, false)
	if err != nil {
		return "", err
	}
	newIdx, newOrder, err := e.decodeRecordID(newID)
	if err != nil {
		return "", err
	}

	headPage, err := e.getPage(head.PageIndex)
	if err != nil {
		return "", err
	}
	headHeader, err := e.getHeader(head.PageIndex)
	if err != nil {
		return "", err
	}
	rh, _, err := RecordHeaderAt(headPage, e.payloadSize, headHeader, head.Order)
	if err != nil {
		return "", err
	}
	rh.AliasIndex = newIdx
	rh.AliasOrder = newOrder
	if err := OverwriteRecordHeader(headPage, e.payloadSize, headHeader, head.Order, rh); err != nil {
		return "", err
	}
	if err := e.putPage(head.PageIndex, headPage); err != nil {
		return "", err
	}

	if head.PageIndex != tail.PageIndex || head.Order != tail.Order {
		// There was a previous alias target: delete it without decrementing
		// the live count, since the record's identity lives on via the new
		// alias target.
		if err := e.deleteAt(tail.PageIndex, tail.Order, false); err != nil {
			return "", err
		}
	}
	return newID, nil
}

// updateCaseB rewrites an overflow chain in place with a grown payload,
// extending the chain with fresh Overflow pages as needed (§4.3.6 Case B).
func (e *Engine) updateCaseB(tail Picked, newRH RecordHeader, newData []byte) error {
	full := NewRecord(newRH, newData)
	chunks := SplitChunks(full, e.payloadSize)

	curIdx := tail.PageIndex
	for i, chunk := range chunks {
		page, err := e.getPage(curIdx)
		if err != nil {
			return err
		}
		h := UnmarshalHeader(page)
		SetPagePayload(page, e.payloadSize, &h, chunk)

		last := i == len(chunks)-1
		if last {
			h.Next = 0
		} else if h.Next == 0 {
			nextIdx, err := e.addEmptyPage(PageTypeOverflow, false)
			if err != nil {
				return err
			}
			h.Next = nextIdx
		}
		MarshalHeader(&h, page)
		SetPageCRC(page)
		if err := e.putPage(curIdx, page); err != nil {
			return err
		}
		if last {
			break
		}
		curIdx = h.Next
	}
	return nil
}

// updateCaseC rewrites a record in place without growing its reserved
// capacity (§4.3.6 Case C): newRH.MaxLength must already carry the
// existing record's MaxLength.
func (e *Engine) updateCaseC(tail Picked, isInternalTail bool, newRH RecordHeader, newData []byte) error {
	if isInternalTail {
		page, err := e.getPage(tail.PageIndex)
		if err != nil {
			return err
		}
		h, err := e.getHeader(tail.PageIndex)
		if err != nil {
			return err
		}
		_, start, err := RecordHeaderAt(page, e.payloadSize, h, tail.Order)
		if err != nil {
			return err
		}
		rec := NewRecord(newRH, newData)
		copy(page[start:start+len(rec)], rec)
		SetPageCRC(page)
		return e.putPage(tail.PageIndex, page)
	}
	return e.updateCaseB(tail, newRH, newData)
}

// ───────────────────────────────────────────────────────────────────────────
// delete (§4.3.7)
// ───────────────────────────────────────────────────────────────────────────

// Delete marks recordID's record deleted and decrements the live count.
func (e *Engine) Delete(recordID string) error {
	if e.closing {
		return ErrClosing
	}
	idx, order, err := e.decodeRecordID(recordID)
	if err != nil {
		return err
	}
	rec, err := e.getRecord(idx, order)
	if err != nil {
		return err
	}
	if rec.Header.Deleted {
		return ErrAlreadyDeleted
	}
	return e.deleteAt(idx, order, true)
}

func (e *Engine) deleteAt(idx, order uint32, countDecrement bool) error {
	page, err := e.getPage(idx)
	if err != nil {
		return err
	}
	h, err := e.getHeader(idx)
	if err != nil {
		return err
	}
	rh, _, err := RecordHeaderAt(page, e.payloadSize, h, order)
	if err != nil {
		return err
	}
	rh.Deleted = true
	if err := OverwriteRecordHeader(page, e.payloadSize, h, order, rh); err != nil {
		return err
	}
	if err := e.putPage(idx, page); err != nil {
		return err
	}
	if countDecrement {
		e.metaMu.Lock()
		e.meta.Count--
		e.metaMu.Unlock()
		if err := e.persistMetadataField(mdCountOff, 4); err != nil {
			return err
		}
	}
	e.recordCache.Invalidate(recordKey(idx, order))
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// getRecords (§4.3.9)
// ───────────────────────────────────────────────────────────────────────────

// GetRecords returns every record stored on the Internal page that heads
// the chain containing pageIndex, walking backwards over Overflow pages to
// find that head first.
func (e *Engine) GetRecords(pageIndex uint32) ([]Record, error) {
	idx := pageIndex
	for {
		h, err := e.getHeader(idx)
		if err != nil {
			return nil, err
		}
		if h.Type != PageTypeOverflow {
			break
		}
		if idx == 1 {
			return nil, fmt.Errorf("pager: no Internal head found before page 1")
		}
		idx--
	}
	h, err := e.getHeader(idx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, h.Count)
	for order := uint32(1); order <= h.Count; order++ {
		rec, err := e.getRecord(idx, order)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close marks the engine as closing; further calls to Put/Pick/Update/
// Delete fail with ErrClosing (§4.3.11).
func (e *Engine) Close() {
	e.closing = true
}
