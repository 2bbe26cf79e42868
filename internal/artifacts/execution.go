package artifacts

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/forenlab/regtriage/internal/regio"
)

// userAssistGUIDs are the Count subkeys tracking executable launches
// ({CEBFF5CD}) and shortcut launches ({F4E57C4B}) on Windows 7 and
// later. Earlier versions use different GUIDs and are not handled.
var userAssistGUIDs = []string{
	"{CEBFF5CD-ACE2-4F4F-9178-9926F41749EA}",
	"{F4E57C4B-2036-45F0-A9AB-443BCFE33D9F}",
}

// UserAssist value data layout: run count at bytes 4..8, last-run
// FILETIME at bytes 60..68.
const (
	userAssistRunCountOff = 4
	userAssistTimeOff     = 60
	userAssistMinLen      = 68
)

func collectUserAssist(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Explorer\UserAssist`

	var arts []Artifact
	var lastErr error
	for _, guid := range userAssistGUIDs {
		path := basePath + `\` + guid + `\Count`
		key, err := m.OpenUser(path)
		if err != nil {
			lastErr = err
			continue
		}
		values, _ := key.Values()
		for _, v := range values {
			name := regio.Rot13(v.Name())
			// UEME_CTLSESSION and friends are session counters, not
			// program launches.
			if strings.HasPrefix(name, "UEME_CTL") {
				continue
			}
			art := Artifact{
				Type:   "user_assist",
				Source: "user_assist",
				Path:   `HKCU\` + path,
				Name:   name,
				Value:  name,
			}
			data, err := v.Data()
			if err == nil && len(data) >= userAssistMinLen {
				art.Timestamp = regio.FiletimeBytes(data[userAssistTimeOff : userAssistTimeOff+8])
				count := binary.LittleEndian.Uint32(data[userAssistRunCountOff : userAssistRunCountOff+4])
				art.Fields = map[string]any{"run_count": count}
			}
			arts = append(arts, art)
		}
		key.Close()
	}
	if len(arts) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return arts, nil
}

func collectBAM(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `CurrentControlSet\Services\bam\State\UserSettings`
	key, err := m.OpenSystem(basePath)
	if err != nil {
		return nil, err
	}
	sids, err := key.SubkeyNames()
	key.Close()
	if err != nil {
		return nil, err
	}

	var arts []Artifact
	for _, sid := range sids {
		if ctx.Err() != nil {
			return arts, ctx.Err()
		}
		sub, err := m.OpenSystem(basePath + `\` + sid)
		if err != nil {
			continue
		}
		values, _ := sub.Values()
		for _, v := range values {
			// Version/SequenceNumber DWORDs are bookkeeping, only the
			// binary entries carry execution times.
			if v.Type() != regio.TypeBinary {
				continue
			}
			data, err := v.Data()
			if err != nil || len(data) < 8 {
				continue
			}
			arts = append(arts, Artifact{
				Type:      "bam_execution",
				Source:    "bam",
				Path:      `HKLM\SYSTEM\` + basePath + `\` + sid,
				Name:      v.Name(),
				Value:     v.Name(),
				Timestamp: regio.FiletimeBytes(data[:8]),
				Fields:    map[string]any{"sid": sid},
			})
		}
		sub.Close()
	}
	return arts, nil
}

func collectRecentDocs(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Explorer\RecentDocs`
	key, err := m.OpenUser(basePath)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	var arts []Artifact
	arts = append(arts, recentDocsEntries(key, `HKCU\`+basePath, "")...)

	exts, _ := key.SubkeyNames()
	for _, ext := range exts {
		if ctx.Err() != nil {
			return arts, ctx.Err()
		}
		sub, err := m.OpenUser(basePath + `\` + ext)
		if err != nil {
			continue
		}
		arts = append(arts, recentDocsEntries(sub, `HKCU\`+basePath+`\`+ext, ext)...)
		sub.Close()
	}
	return arts, nil
}

// recentDocsEntries decodes MRU entries from one RecentDocs key. Each
// numbered value holds a UTF-16LE display name followed by shell item
// data; only the display name matters here. The key's last-write time
// belongs to the entry MRUListEx ranks first, the rest carry no usable
// timestamp.
func recentDocsEntries(key regio.Key, displayPath, ext string) []Artifact {
	values, err := key.Values()
	if err != nil {
		return nil
	}

	mostRecent := ""
	if v, err := key.Value("MRUListEx"); err == nil {
		if data, err := v.Data(); err == nil && len(data) >= 4 {
			idx := binary.LittleEndian.Uint32(data[:4])
			if idx != 0xffffffff {
				mostRecent = strconv.FormatUint(uint64(idx), 10)
			}
		}
	}

	var arts []Artifact
	for _, v := range values {
		if _, err := strconv.Atoi(v.Name()); err != nil {
			continue
		}
		data, err := v.Data()
		if err != nil || len(data) == 0 {
			continue
		}
		name, _, _ := strings.Cut(regio.DecodeUTF16(data), "\x00")
		if name == "" {
			continue
		}
		art := Artifact{
			Type:   "recent_doc",
			Source: "recent_docs",
			Path:   displayPath,
			Name:   name,
			Value:  name,
		}
		if ext != "" {
			art.Fields = map[string]any{"extension": ext}
		}
		if v.Name() == mostRecent {
			art.Timestamp = key.LastWriteTime()
		}
		arts = append(arts, art)
	}
	return arts
}

func collectMUICache(ctx context.Context, m *Machine) ([]Artifact, error) {
	const basePath = `SOFTWARE\Classes\Local Settings\Software\Microsoft\Windows\Shell\MuiCache`
	key, err := m.OpenUser(basePath)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	var arts []Artifact
	values, _ := key.Values()
	for _, v := range values {
		if strings.EqualFold(v.Name(), "LangID") {
			continue
		}
		arts = append(arts, Artifact{
			Type:   "mui_cache",
			Source: "mui_cache",
			Path:   `HKCU\` + basePath,
			Name:   v.Name(),
			Value:  v.String(),
		})
	}
	return arts, nil
}
