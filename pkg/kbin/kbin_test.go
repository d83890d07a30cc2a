package kbin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	var w Writer
	w.Int8(-5)
	w.Int16(-1234)
	w.Int32(123456789)
	w.Int64(-9_000_000_000)
	s := "hello"
	w.NullableString(&s)
	w.NullableString(nil)
	w.NullableBytes([]byte{1, 2, 3})
	w.NullableBytes(nil)

	r := Reader{Src: w.Bytes()}
	if got := r.Int8(); got != -5 {
		t.Fatalf("Int8 = %d, want -5", got)
	}
	if got := r.Int16(); got != -1234 {
		t.Fatalf("Int16 = %d, want -1234", got)
	}
	if got := r.Int32(); got != 123456789 {
		t.Fatalf("Int32 = %d, want 123456789", got)
	}
	if got := r.Int64(); got != -9_000_000_000 {
		t.Fatalf("Int64 = %d, want -9000000000", got)
	}
	if got := r.NullableString(); got == nil || *got != "hello" {
		t.Fatalf("NullableString = %v, want hello", got)
	}
	if got := r.NullableString(); got != nil {
		t.Fatalf("NullableString = %v, want nil", got)
	}
	if got := r.NullableBytes(); !cmp.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("NullableBytes = %v, want [1 2 3]", got)
	}
	if got := r.NullableBytes(); got != nil {
		t.Fatalf("NullableBytes = %v, want nil", got)
	}
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete() = %v, want nil", err)
	}
}

func TestNullVsEmptyString(t *testing.T) {
	var w Writer
	w.NullableString(nil)
	empty := ""
	w.NullableString(&empty)
	r := Reader{Src: w.Bytes()}

	nullLen := int16(r.Src[0])<<8 | int16(r.Src[1])
	if nullLen != -1 {
		t.Fatalf("null string length = %d, want -1", nullLen)
	}
	_ = r.NullableString() // consume the null

	emptyLen := int16(r.Src[0])<<8 | int16(r.Src[1])
	if emptyLen != 0 {
		t.Fatalf("empty string length = %d, want 0", emptyLen)
	}
}

func TestReservationFill(t *testing.T) {
	var w Writer
	res := w.Reserve()
	if w.Unfilled() != 1 {
		t.Fatalf("Unfilled = %d after Reserve, want 1", w.Unfilled())
	}
	w.Raw([]byte{1, 2, 3, 4, 5})
	w.Fill(res, int32(5))
	if w.Unfilled() != 0 {
		t.Fatalf("Unfilled = %d after Fill, want 0", w.Unfilled())
	}

	r := Reader{Src: w.Bytes()}
	count := r.Int32()
	if count != 5 {
		t.Fatalf("patched count = %d, want 5", count)
	}
	if r.Remaining() != 5 {
		t.Fatalf("remaining = %d, want 5", r.Remaining())
	}
}

func TestUnderflowIsSticky(t *testing.T) {
	r := Reader{Src: []byte{0, 1}}
	_ = r.Int32() // underflows: only 2 bytes available
	if r.Complete() == nil {
		t.Fatal("expected sticky error after underflow")
	}
	// Subsequent reads must not panic and must keep returning zero values.
	if got := r.Int64(); got != 0 {
		t.Fatalf("post-error Int64 = %d, want 0", got)
	}
	if got := r.NullableString(); got != nil {
		t.Fatalf("post-error NullableString = %v, want nil", got)
	}
	if r.Complete() != ErrNotEnoughData {
		t.Fatalf("Complete() = %v, want ErrNotEnoughData", r.Complete())
	}
}
