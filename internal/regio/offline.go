package regio

import (
	"fmt"
	"os"
	"strings"
	"time"

	"www.velocidex.com/golang/regparser"
)

// OfflineHive parses a hive file (SYSTEM, SOFTWARE, SAM, NTUSER.DAT)
// with regparser. Safe for read-only concurrent use once opened.
type OfflineHive struct {
	registry *regparser.Registry
	file     *os.File
	path     string
}

// OpenHiveFile opens and parses a registry hive file.
func OpenHiveFile(path string) (*OfflineHive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hive %s: %w", path, err)
	}
	reg, err := regparser.NewRegistry(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse hive %s: %w", path, err)
	}
	return &OfflineHive{registry: reg, file: f, path: path}, nil
}

// Open returns the key at path, relative to the hive root.
func (h *OfflineHive) Open(path string) (Key, error) {
	path = normalizePath(path)
	key := h.registry.OpenKey(path)
	if key == nil {
		return nil, fmt.Errorf("%s in %s: %w", path, h.path, ErrKeyNotFound)
	}
	return &offlineKey{key: key}, nil
}

func (h *OfflineHive) Close() error {
	return h.file.Close()
}

// normalizePath converts separators and trims the leading slash so
// both "Select\Current" and "/Select/Current" address the same key.
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(path, "/")
}

type offlineKey struct {
	key *regparser.CM_KEY_NODE
}

func (k *offlineKey) Name() string {
	return k.key.Name()
}

func (k *offlineKey) SubkeyNames() ([]string, error) {
	var names []string
	for _, subkey := range k.key.Subkeys() {
		names = append(names, subkey.Name())
	}
	return names, nil
}

func (k *offlineKey) Values() ([]Value, error) {
	var values []Value
	for _, v := range k.key.Values() {
		values = append(values, &offlineValue{value: v})
	}
	return values, nil
}

func (k *offlineKey) Value(name string) (Value, error) {
	for _, v := range k.key.Values() {
		if strings.EqualFold(v.ValueName(), name) {
			return &offlineValue{value: v}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrValueNotFound)
}

func (k *offlineKey) LastWriteTime() time.Time {
	return k.key.LastWriteTime().Time.UTC()
}

// Class reads the key's class name bytes. The class data lives in the
// hive's cell area: 4096 bytes of base block plus the 4-byte cell size
// prefix before the class offset.
func (k *offlineKey) Class() []byte {
	length := k.key.ClassLength()
	if length == 0 {
		return nil
	}
	offset := int64(k.key.Class()) + 4096 + 4
	buf := make([]byte, length)
	if n, err := k.key.Reader.ReadAt(buf, offset); err != nil || n != int(length) {
		return nil
	}
	return buf
}

func (k *offlineKey) Close() error { return nil }

type offlineValue struct {
	value *regparser.CM_KEY_VALUE
}

func (v *offlineValue) Name() string {
	return v.value.ValueName()
}

func (v *offlineValue) Type() int {
	return int(v.value.ValueData().Type)
}

func (v *offlineValue) Data() ([]byte, error) {
	return v.value.ValueData().Data, nil
}

func (v *offlineValue) String() string {
	data := v.value.ValueData()
	switch data.Type {
	case regparser.REG_SZ, regparser.REG_EXPAND_SZ, regparser.REG_MULTI_SZ:
		return strings.TrimRight(data.String, "\x00")
	case regparser.REG_DWORD, regparser.REG_QWORD, regparser.REG_DWORD_BIG_ENDIAN:
		return fmt.Sprintf("%d", data.Uint64)
	default:
		return fmt.Sprintf("% x", data.Data)
	}
}

func (v *offlineValue) Uint64() uint64 {
	return v.value.ValueData().Uint64
}
