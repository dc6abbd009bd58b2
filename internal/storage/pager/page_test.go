package pager

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: PageTypeInternal, Index: 7, Next: 9, Count: 3, Free: 512}
	buf := make([]byte, PageHeaderSize)
	MarshalHeader(&h, buf)
	got := UnmarshalHeader(buf)
	if got != h {
		t.Fatalf("UnmarshalHeader(MarshalHeader(h)) = %+v, want %+v", got, h)
	}
}

func TestPageTypeString(t *testing.T) {
	cases := map[PageType]string{
		PageTypeUnknown:        "Unknown",
		PageTypeInternal:       "Internal",
		PageTypeOverflow:       "Overflow",
		PageTypeSystemReserved: "SystemReserved",
		PageType(99):           "PageType(99)",
	}
	for pt, want := range cases {
		if got := pt.String(); got != want {
			t.Errorf("PageType(%d).String() = %q, want %q", pt, got, want)
		}
	}
}

func TestNewPageCRCValid(t *testing.T) {
	page := NewPage(256, PageTypeInternal, 1)
	if err := VerifyPageCRC(page); err != nil {
		t.Fatalf("VerifyPageCRC on fresh page: %v", err)
	}
}

func TestVerifyPageCRCDetectsCorruption(t *testing.T) {
	page := NewPage(256, PageTypeInternal, 1)
	page[PageHeaderSize] ^= 0xFF
	if err := VerifyPageCRC(page); err == nil {
		t.Fatal("expected CRC mismatch after corrupting payload byte")
	}
}

func TestSetPageCRCAfterMutation(t *testing.T) {
	page := NewPage(256, PageTypeInternal, 1)
	page[PageHeaderSize] = 0x42
	SetPageCRC(page)
	if err := VerifyPageCRC(page); err != nil {
		t.Fatalf("VerifyPageCRC after SetPageCRC: %v", err)
	}
}

func TestPageSize(t *testing.T) {
	if got := PageSize(4096); got != PageHeaderSize+4096 {
		t.Fatalf("PageSize(4096) = %d, want %d", got, PageHeaderSize+4096)
	}
}
