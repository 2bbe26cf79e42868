package artifacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/forenlab/regtriage/internal/regio"
)

// currentVersionValues is the allowlist of CurrentVersion values worth
// surfacing; the key holds dozens more that say nothing about the
// machine's identity.
var currentVersionValues = []string{
	"ProductName",
	"ReleaseID",
	"BuildLab",
	"BuildLabEx",
	"CompositionEditionID",
	"RegisteredOrganization",
	"RegisteredOwner",
	"InstallTime",
}

// interfaceValues is the allowlist of per-NIC TCP/IP parameters.
var interfaceValues = []string{
	"DefaultGateway",
	"DhcpServer",
	"DhcpIPAddress",
	"DhcpNameServer",
	"DhcpSubnetMask",
	"DhcpDomain",
	"Domain",
	"IPAddress",
	"NameServer",
	"SubnetMask",
}

func inAllowlist(list []string, name string) bool {
	for _, n := range list {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func collectSystemInfo(ctx context.Context, m *Machine) ([]Artifact, error) {
	var arts []Artifact

	const computerNamePath = `CurrentControlSet\Control\ComputerName\ActiveComputerName`
	key, err := m.OpenSystem(computerNamePath)
	if err == nil {
		values, _ := key.Values()
		for _, v := range values {
			if !strings.EqualFold(v.Name(), "ComputerName") {
				continue
			}
			name := v.String()
			if m.Host == "" {
				m.Host = name
			}
			arts = append(arts, Artifact{
				Type:      "system_info",
				Source:    "system_info",
				Path:      `HKLM\SYSTEM\` + computerNamePath,
				Name:      "ComputerName",
				Value:     name,
				Timestamp: key.LastWriteTime(),
			})
		}
		key.Close()
	}

	const versionPath = `Microsoft\Windows NT\CurrentVersion`
	key, verr := m.OpenSoftware(versionPath)
	if verr == nil {
		values, _ := key.Values()
		for _, v := range values {
			if !inAllowlist(currentVersionValues, v.Name()) {
				continue
			}
			art := Artifact{
				Type:   "system_info",
				Source: "system_info",
				Path:   `HKLM\SOFTWARE\` + versionPath,
				Name:   v.Name(),
				Value:  v.String(),
			}
			// InstallTime is a QWORD FILETIME; surface it as the
			// artifact's own timestamp.
			if strings.EqualFold(v.Name(), "InstallTime") {
				ts := regio.Filetime(v.Uint64())
				art.Timestamp = ts
				art.Value = ts.Format("2006-01-02T15:04:05Z")
			}
			arts = append(arts, art)
		}
		key.Close()
	}

	if err != nil && verr != nil {
		return nil, fmt.Errorf("system info: %w", err)
	}
	return arts, nil
}

func collectNetwork(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `CurrentControlSet\Services\Tcpip\Parameters\Interfaces`
	key, err := m.OpenSystem(basePath)
	if err != nil {
		return nil, err
	}
	names, err := key.SubkeyNames()
	key.Close()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
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
		values, _ := sub.Values()
		fields := make(map[string]any)
		for _, v := range values {
			if inAllowlist(interfaceValues, v.Name()) && v.String() != "" {
				fields[v.Name()] = v.String()
			}
		}
		if len(fields) > 0 {
			arts = append(arts, Artifact{
				Type:      "network_interface",
				Source:    "network",
				Path:      `HKLM\SYSTEM\` + basePath + `\` + name,
				Name:      name,
				Timestamp: sub.LastWriteTime(),
				Fields:    fields,
			})
		}
		sub.Close()
	}
	return arts, nil
}
