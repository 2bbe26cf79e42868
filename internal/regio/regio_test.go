package regio

import (
	"testing"
	"time"
)

func TestFiletime_KnownValue(t *testing.T) {
	// 2021-01-01T00:00:00Z = 132539328000000000 ticks since 1601
	got := Filetime(132539328000000000)
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Filetime = %v, want %v", got, want)
	}
}

func TestFiletime_Zero(t *testing.T) {
	if !Filetime(0).IsZero() {
		t.Error("expected zero time for zero ticks")
	}
}

func TestFiletimeBytes_LittleEndian(t *testing.T) {
	// 132539328000000000 little-endian
	b := []byte{0x00, 0x80, 0x35, 0x0c, 0xd1, 0xdf, 0xd6, 0x01}
	got := FiletimeBytes(b)
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("FiletimeBytes = %v, want %v", got, want)
	}
}

func TestFiletimeBytes_Short(t *testing.T) {
	if !FiletimeBytes([]byte{1, 2, 3}).IsZero() {
		t.Error("expected zero time for short input")
	}
}

func TestRot13_UserAssistName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"HRZR_PGYFRFFVBA", "UEME_CTLSESSION"},
		{"P:\\Jvaqbjf\\abgrcnq.rkr", "C:\\Windows\\notepad.exe"},
		{"UEME_CTLSESSION", "HRZR_PGYFRFFVBA"}, // rot13 is its own inverse
		{"1234{}-", "1234{}-"},                 // non-letters untouched
	}
	for _, tc := range cases {
		if got := Rot13(tc.in); got != tc.want {
			t.Errorf("Rot13(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeUTF16_Basic(t *testing.T) {
	b := []byte{'a', 0, 'b', 0, 'c', 0}
	if got := DecodeUTF16(b); got != "abc" {
		t.Errorf("DecodeUTF16 = %q, want %q", got, "abc")
	}
}

func TestDecodeUTF16_OddLength(t *testing.T) {
	b := []byte{'x', 0, 'y', 0, 0xff}
	if got := DecodeUTF16(b); got != "xy" {
		t.Errorf("DecodeUTF16 = %q, want %q", got, "xy")
	}
}

func TestNormalizePath_Separators(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`Select\Current`, "Select/Current"},
		{`/Select/Current`, "Select/Current"},
		{`\ControlSet001\Control`, "ControlSet001/Control"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
