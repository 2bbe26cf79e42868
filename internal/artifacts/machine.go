package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forenlab/regtriage/internal/regio"
)

// Machine is a registry view of one system: either the live registry
// of the host regtriage runs on, or a directory of hive files exported
// from an image. Collectors address keys with CurrentControlSet paths;
// the Machine resolves them against the right backend.
type Machine struct {
	// Host is the computer name, once known.
	Host string

	system   regio.Hive
	software regio.Hive
	user     regio.Hive
	sam      regio.Hive

	// controlSet is the resolved ControlSet00N name for offline SYSTEM
	// hives; empty in live mode where CurrentControlSet is a real link.
	controlSet string
	live       bool
}

// Hive file names looked for (case-insensitively) in an offline hive
// directory. NTUSER.DAT comes from a user profile root.
var hiveFileNames = map[string]string{
	"system":     "SYSTEM",
	"software":   "SOFTWARE",
	"sam":        "SAM",
	"ntuser.dat": "NTUSER.DAT",
}

// NewLiveMachine opens the running system's registry. Windows only.
func NewLiveMachine(hostname string) (*Machine, error) {
	hklm, err := regio.OpenLiveHive("HKLM")
	if err != nil {
		return nil, err
	}
	hkcu, err := regio.OpenLiveHive("HKCU")
	if err != nil {
		return nil, err
	}
	return &Machine{
		Host:     hostname,
		system:   hklm,
		software: hklm,
		user:     hkcu,
		live:     true,
	}, nil
}

// NewOfflineMachine opens whatever hive files exist under dir. At least
// one recognized hive is required; missing hives simply disable the
// collectors that need them.
func NewOfflineMachine(dir string) (*Machine, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("hive dir: %w", err)
	}

	m := &Machine{}
	found := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		canonical, ok := hiveFileNames[strings.ToLower(entry.Name())]
		if !ok {
			continue
		}
		hive, err := regio.OpenHiveFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			m.Close()
			return nil, err
		}
		switch canonical {
		case "SYSTEM":
			m.system = hive
		case "SOFTWARE":
			m.software = hive
		case "SAM":
			m.sam = hive
		case "NTUSER.DAT":
			m.user = hive
		}
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("no registry hives found in %s", dir)
	}

	if m.system != nil {
		m.controlSet = resolveControlSet(m.system)
	}
	return m, nil
}

// resolveControlSet reads Select\Current to find the active control
// set. ControlSet001 is the usual fallback.
func resolveControlSet(system regio.Hive) string {
	key, err := system.Open(`Select`)
	if err != nil {
		return "ControlSet001"
	}
	defer key.Close()
	v, err := key.Value("Current")
	if err != nil {
		return "ControlSet001"
	}
	n := v.Uint64()
	if n == 0 {
		n = 1
	}
	return fmt.Sprintf("ControlSet%03d", n)
}

// Live reports whether this machine reads the running registry.
func (m *Machine) Live() bool { return m.live }

// HasSystem reports whether SYSTEM hive data is reachable.
func (m *Machine) HasSystem() bool { return m.system != nil }

// HasSoftware reports whether SOFTWARE hive data is reachable.
func (m *Machine) HasSoftware() bool { return m.software != nil }

// HasUser reports whether per-user (NTUSER/HKCU) data is reachable.
func (m *Machine) HasUser() bool { return m.user != nil }

// SamHive returns the offline SAM hive, or nil. The live SAM is ACL
// protected and never exposed here.
func (m *Machine) SamHive() regio.Hive { return m.sam }

// SystemHive returns the SYSTEM hive for bootkey extraction (offline
// only), or nil.
func (m *Machine) SystemHive() regio.Hive {
	if m.live {
		return nil
	}
	return m.system
}

// ErrHiveUnavailable signals that the hive a collector needs was not
// loaded (offline dir without the file, or no HKCU in live mode).
var ErrHiveUnavailable = errors.New("artifacts: required hive not available")

// OpenSystem opens a SYSTEM key. Paths may start with CurrentControlSet,
// which offline mode rewrites to the resolved control set.
func (m *Machine) OpenSystem(path string) (regio.Key, error) {
	if m.system == nil {
		return nil, fmt.Errorf("SYSTEM: %w", ErrHiveUnavailable)
	}
	if m.live {
		return m.system.Open(`SYSTEM\` + path)
	}
	if rest, ok := strings.CutPrefix(path, `CurrentControlSet`); ok {
		path = m.controlSet + rest
	}
	return m.system.Open(path)
}

// OpenSoftware opens a key under HKLM\SOFTWARE (or the SOFTWARE hive).
func (m *Machine) OpenSoftware(path string) (regio.Key, error) {
	if m.software == nil {
		return nil, fmt.Errorf("SOFTWARE: %w", ErrHiveUnavailable)
	}
	if m.live {
		return m.software.Open(`SOFTWARE\` + path)
	}
	return m.software.Open(path)
}

// OpenUser opens a key under HKCU (or the NTUSER.DAT hive).
func (m *Machine) OpenUser(path string) (regio.Key, error) {
	if m.user == nil {
		return nil, fmt.Errorf("NTUSER: %w", ErrHiveUnavailable)
	}
	return m.user.Open(path)
}

// Close releases all open hives.
func (m *Machine) Close() {
	seen := map[regio.Hive]bool{}
	for _, h := range []regio.Hive{m.system, m.software, m.user, m.sam} {
		if h != nil && !seen[h] {
			seen[h] = true
			h.Close()
		}
	}
}
