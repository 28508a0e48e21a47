package stg

import "testing"

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemory()
	m.Write(10, []byte("hello"))
	buf := make([]byte, 5)
	m.Read(10, buf)
	if string(buf) != "hello" {
		t.Fatalf("got %q, want hello", buf)
	}
}

func TestMemoryReadPastEndIsZeroFilled(t *testing.T) {
	m := NewMemory()
	m.Write(0, []byte("ab"))
	buf := make([]byte, 10)
	m.Read(0, buf)
	for i := 2; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d = %d, want 0 (sparse zero-fill)", i, buf[i])
		}
	}
}

func TestMemoryCommitGrowsAndTruncates(t *testing.T) {
	m := NewMemory()
	m.Write(0, []byte("abcdef"))
	m.Commit(3)
	if m.Size() != 3 {
		t.Fatalf("Size() = %d, want 3 after truncating commit", m.Size())
	}
	m.Commit(8)
	if m.Size() != 8 {
		t.Fatalf("Size() = %d, want 8 after growing commit", m.Size())
	}
	buf := make([]byte, 8)
	m.Read(0, buf)
	if string(buf[:3]) != "abc" {
		t.Fatalf("surviving prefix = %q, want abc", buf[:3])
	}
}

func TestU64RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	SetU64(buf, 0, 0x0102030405060708)
	if got := GetU64(buf, 0); got != 0x0102030405060708 {
		t.Fatalf("GetU64 = %x, want %x", got, 0x0102030405060708)
	}
}
