// Package regio abstracts Windows registry access over two backends:
// the live registry (Windows only) and offline hive files parsed with
// regparser. Collectors only see the Hive/Key/Value interfaces so the
// same artifact parsers run against both.
package regio

import (
	"errors"
	"time"
)

// Registry value types, mirroring the Windows REG_* constants.
const (
	TypeNone      = 0
	TypeSZ        = 1
	TypeExpandSZ  = 2
	TypeBinary    = 3
	TypeDWORD     = 4
	TypeMultiSZ   = 7
	TypeQWORD     = 11
)

var (
	// ErrKeyNotFound is returned when a key path does not exist.
	ErrKeyNotFound = errors.New("regio: key not found")
	// ErrValueNotFound is returned when a named value does not exist.
	ErrValueNotFound = errors.New("regio: value not found")
	// ErrLiveUnsupported is returned when live registry access is
	// requested on a non-Windows platform.
	ErrLiveUnsupported = errors.New("regio: live registry access requires windows")
)

// Hive is an open registry hive (one file in offline mode, one root
// predefined key in live mode).
type Hive interface {
	// Open returns the key at the backslash-separated path relative to
	// the hive root. Forward slashes are accepted and normalized.
	Open(path string) (Key, error)
	Close() error
}

// Key is an open registry key.
type Key interface {
	Name() string
	// SubkeyNames returns the names of all direct subkeys.
	SubkeyNames() ([]string, error)
	// Values returns all values of the key.
	Values() ([]Value, error)
	// Value returns the named value or ErrValueNotFound.
	Value(name string) (Value, error)
	// LastWriteTime is the key's last modification time in UTC.
	// The zero time is returned when the backend cannot provide it.
	LastWriteTime() time.Time
	// Class returns the raw class name bytes, or nil when absent.
	// The SYSTEM hive stores bootkey material here.
	Class() []byte
	Close() error
}

// Value is a single registry value.
type Value interface {
	Name() string
	// Type is one of the Type* constants.
	Type() int
	// Data returns the raw value bytes.
	Data() ([]byte, error)
	// String returns the value decoded as a string. Non-string types
	// are converted.
	String() string
	// Uint64 returns DWORD/QWORD values; 0 for other types.
	Uint64() uint64
}

// windowsEpoch is 1601-01-01 UTC, the FILETIME origin.
var windowsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Filetime converts a Windows FILETIME (100ns ticks since 1601) to a
// UTC time.Time. Zero input yields the zero time so callers can treat
// unset timestamps as absent.
func Filetime(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	return windowsEpoch.Add(time.Duration(ticks/10) * time.Microsecond).UTC()
}

// FiletimeBytes reads a little-endian FILETIME from the first 8 bytes
// of b. Short input yields the zero time.
func FiletimeBytes(b []byte) time.Time {
	if len(b) < 8 {
		return time.Time{}
	}
	var ticks uint64
	for i := 7; i >= 0; i-- {
		ticks = ticks<<8 | uint64(b[i])
	}
	return Filetime(ticks)
}

// Rot13 decodes the ROT13 obfuscation applied to UserAssist value names.
func Rot13(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = 'a' + (c-'a'+13)%26
		case c >= 'A' && c <= 'Z':
			out[i] = 'A' + (c-'A'+13)%26
		}
	}
	return string(out)
}
