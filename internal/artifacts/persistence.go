package artifacts

import (
	"context"
	"strings"

	"github.com/forenlab/regtriage/internal/regio"
)

// runKeyPaths lists the CurrentVersion autostart keys checked in both
// the machine and the user hive.
var runKeyPaths = []string{
	`Microsoft\Windows\CurrentVersion\Run`,
	`Microsoft\Windows\CurrentVersion\RunOnce`,
}

func collectRunKeys(ctx context.Context, m *Machine) ([]Artifact, error) {
	var arts []Artifact
	var lastErr error

	open := func(scope, path string) (regio.Key, string, error) {
		if scope == "HKLM" {
			k, err := m.OpenSoftware(path)
			return k, `HKLM\SOFTWARE\` + path, err
		}
		k, err := m.OpenUser(`SOFTWARE\` + path)
		return k, `HKCU\SOFTWARE\` + path, err
	}

	for _, scope := range []string{"HKLM", "HKCU"} {
		for _, path := range runKeyPaths {
			key, display, err := open(scope, path)
			if err != nil {
				lastErr = err
				continue
			}
			values, _ := key.Values()
			for _, v := range values {
				arts = append(arts, Artifact{
					Type:      "autostart",
					Source:    "run_keys",
					Path:      display,
					Name:      v.Name(),
					Value:     v.String(),
					Timestamp: key.LastWriteTime(),
					Fields:    map[string]any{"hive": scope},
				})
			}
			key.Close()
		}
	}
	if len(arts) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return arts, nil
}

// systemImageDirs are directory prefixes an auto-start service binary
// is expected to live under. Anything else gets flagged.
var systemImageDirs = []string{
	`c:\windows\system32`,
	`c:\windows\syswow64`,
	`c:\windows\servicing`,
	`c:\program files`,
	`c:\program files (x86)`,
	`system32\`,
	`\systemroot\`,
}

const serviceStartAuto = 2

func collectServices(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `CurrentControlSet\Services`
	key, err := m.OpenSystem(basePath)
	if err != nil {
		return nil, err
	}
	names, err := key.SubkeyNames()
	key.Close()
	if err != nil {
		return nil, err
	}

	var arts []Artifact
	for _, name := range names {
		if ctx.Err() != nil {
			return arts, ctx.Err()
		}
		sub, err := m.OpenSystem(basePath + `\` + name)
		if err != nil {
			continue
		}
		image := ""
		if v, err := sub.Value("ImagePath"); err == nil {
			image = v.String()
		}
		var start, svcType uint64
		if v, err := sub.Value("Start"); err == nil {
			start = v.Uint64()
		}
		if v, err := sub.Value("Type"); err == nil {
			svcType = v.Uint64()
		}
		// Only auto-start entries with an image path are triage
		// relevant; demand-start drivers drown out the signal.
		if image == "" || start > serviceStartAuto {
			sub.Close()
			continue
		}
		arts = append(arts, Artifact{
			Type:      "service",
			Source:    "services",
			Path:      `HKLM\SYSTEM\` + basePath + `\` + name,
			Name:      name,
			Value:     image,
			Timestamp: sub.LastWriteTime(),
			Fields: map[string]any{
				"start":           start,
				"service_type":    svcType,
				"non_system_path": !isSystemImagePath(image),
			},
		})
		sub.Close()
	}
	return arts, nil
}

// isSystemImagePath reports whether the service image lives under a
// standard system directory. Quotes and arguments are stripped first.
func isSystemImagePath(image string) bool {
	p := strings.ToLower(strings.TrimSpace(image))
	p = strings.Trim(p, `"`)
	if i := strings.Index(p, ".exe"); i >= 0 {
		p = p[:i+4]
	}
	for _, dir := range systemImageDirs {
		if strings.HasPrefix(p, dir) || strings.Contains(p, dir) {
			return true
		}
	}
	return false
}

func collectEnvironment(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `CurrentControlSet\Control\Session Manager\Environment`
	key, err := m.OpenSystem(basePath)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	var arts []Artifact
	values, _ := key.Values()
	for _, v := range values {
		arts = append(arts, Artifact{
			Type:      "environment",
			Source:    "environment",
			Path:      `HKLM\SYSTEM\` + basePath,
			Name:      v.Name(),
			Value:     v.String(),
			Timestamp: key.LastWriteTime(),
		})
	}
	return arts, nil
}
