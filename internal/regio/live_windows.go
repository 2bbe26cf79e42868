//go:build windows

package regio

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/windows/registry"
)

// LiveHive reads from the running system's registry under one of the
// predefined root keys.
type LiveHive struct {
	root registry.Key
	name string
}

// OpenLiveHive opens a predefined root key. Accepted names: HKLM, HKCU,
// HKU, HKCR, HKCC (and their HKEY_* long forms).
func OpenLiveHive(name string) (Hive, error) {
	root, err := rootKey(name)
	if err != nil {
		return nil, err
	}
	return &LiveHive{root: root, name: name}, nil
}

func rootKey(name string) (registry.Key, error) {
	switch strings.ToUpper(name) {
	case "HKLM", "HKEY_LOCAL_MACHINE":
		return registry.LOCAL_MACHINE, nil
	case "HKCU", "HKEY_CURRENT_USER":
		return registry.CURRENT_USER, nil
	case "HKU", "HKEY_USERS":
		return registry.USERS, nil
	case "HKCR", "HKEY_CLASSES_ROOT":
		return registry.CLASSES_ROOT, nil
	case "HKCC", "HKEY_CURRENT_CONFIG":
		return registry.CURRENT_CONFIG, nil
	}
	return 0, fmt.Errorf("regio: unknown registry root %q", name)
}

func (h *LiveHive) Open(path string) (Key, error) {
	path = strings.ReplaceAll(normalizePath(path), "/", `\`)
	k, err := registry.OpenKey(h.root, path, registry.READ|registry.WOW64_64KEY)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, fmt.Errorf("%s\\%s: %w", h.name, path, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("open %s\\%s: %w", h.name, path, err)
	}
	name := path
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		name = path[i+1:]
	}
	return &liveKey{key: k, name: name}, nil
}

func (h *LiveHive) Close() error { return nil }

type liveKey struct {
	key  registry.Key
	name string
}

func (k *liveKey) Name() string { return k.name }

func (k *liveKey) SubkeyNames() ([]string, error) {
	return k.key.ReadSubKeyNames(-1)
}

func (k *liveKey) Values() ([]Value, error) {
	names, err := k.key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}
	values := make([]Value, 0, len(names))
	for _, name := range names {
		v, err := k.readValue(name)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

func (k *liveKey) Value(name string) (Value, error) {
	v, err := k.readValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrValueNotFound)
		}
		return nil, err
	}
	return v, nil
}

// readValue snapshots the value data eagerly so callers can keep the
// Value after the key is closed.
func (k *liveKey) readValue(name string) (*liveValue, error) {
	size, valType, err := k.key.GetValue(name, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, _, err := k.key.GetValue(name, buf); err != nil {
			return nil, err
		}
	}
	return &liveValue{name: name, valType: int(valType), data: buf}, nil
}

func (k *liveKey) LastWriteTime() time.Time {
	info, err := k.key.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime().UTC()
}

// Class is not exposed by the live registry API; bootkey extraction is
// an offline-only concern anyway.
func (k *liveKey) Class() []byte { return nil }

func (k *liveKey) Close() error { return k.key.Close() }

type liveValue struct {
	name    string
	valType int
	data    []byte
}

func (v *liveValue) Name() string { return v.name }
func (v *liveValue) Type() int    { return v.valType }

func (v *liveValue) Data() ([]byte, error) {
	return v.data, nil
}

func (v *liveValue) String() string {
	switch v.valType {
	case TypeSZ, TypeExpandSZ, TypeMultiSZ:
		return strings.TrimRight(DecodeUTF16(v.data), "\x00")
	case TypeDWORD, TypeQWORD:
		return fmt.Sprintf("%d", v.Uint64())
	default:
		return fmt.Sprintf("% x", v.data)
	}
}

func (v *liveValue) Uint64() uint64 {
	var out uint64
	data := v.data
	if len(data) > 8 {
		data = data[:8]
	}
	for i := len(data) - 1; i >= 0; i-- {
		out = out<<8 | uint64(data[i])
	}
	return out
}
