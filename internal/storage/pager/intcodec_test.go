package pager

import "testing"

func TestUintCodecRoundTrips(t *testing.T) {
	t.Run("uint8", func(t *testing.T) {
		buf := make([]byte, 1)
		PutUint8(buf, 0xAB)
		if got := Uint8(buf); got != 0xAB {
			t.Fatalf("Uint8 = %x, want %x", got, 0xAB)
		}
	})
	t.Run("uint16", func(t *testing.T) {
		buf := make([]byte, 2)
		PutUint16(buf, 0x1234)
		if got := Uint16(buf); got != 0x1234 {
			t.Fatalf("Uint16 = %x, want %x", got, 0x1234)
		}
	})
	t.Run("uint32", func(t *testing.T) {
		buf := make([]byte, 4)
		PutUint32(buf, 0xDEADBEEF)
		if got := Uint32(buf); got != 0xDEADBEEF {
			t.Fatalf("Uint32 = %x, want %x", got, 0xDEADBEEF)
		}
	})
	t.Run("uint64", func(t *testing.T) {
		buf := make([]byte, 8)
		PutUint64(buf, 0x0102030405060708)
		if got := Uint64(buf); got != 0x0102030405060708 {
			t.Fatalf("Uint64 = %x, want %x", got, 0x0102030405060708)
		}
	})
	t.Run("uint128", func(t *testing.T) {
		var v [16]byte
		for i := range v {
			v[i] = byte(i)
		}
		buf := make([]byte, 16)
		PutUint128(buf, v)
		if got := Uint128(buf); got != v {
			t.Fatalf("Uint128 = %v, want %v", got, v)
		}
	})
	t.Run("uint256", func(t *testing.T) {
		var v [32]byte
		for i := range v {
			v[i] = byte(i * 3)
		}
		buf := make([]byte, 32)
		PutUint256(buf, v)
		if got := Uint256(buf); got != v {
			t.Fatalf("Uint256 = %v, want %v", got, v)
		}
	})
}

func TestTextCodecRoundTrip(t *testing.T) {
	s := "hello, 世界"
	if got := DecodeText(EncodeText(s)); got != s {
		t.Fatalf("DecodeText(EncodeText(%q)) = %q", s, got)
	}
}
