// Package winevt reads Windows EVTX event log files and normalizes
// records, including the Sysmon operational channel, into artifacts.
package winevt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/evtx"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/regio"
)

// SysmonChannel is the channel name Sysmon writes to.
const SysmonChannel = "Microsoft-Windows-Sysmon/Operational"

// sysmonTypes maps well-known Sysmon event IDs to artifact types.
var sysmonTypes = map[int]string{
	1:  "sysmon_process_create",
	3:  "sysmon_network_connect",
	7:  "sysmon_image_load",
	11: "sysmon_file_create",
	13: "sysmon_registry_set",
	22: "sysmon_dns_query",
}

// ReadStats counts what happened while reading one file.
type ReadStats struct {
	File    string `json:"file"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped"` // corrupt chunks or unparseable records
}

// ReadFile parses one EVTX file into normalized artifacts. Corrupt
// chunks are counted and skipped; only an unreadable file is an error.
func ReadFile(ctx context.Context, path string) ([]artifacts.Artifact, ReadStats, error) {
	stats := ReadStats{File: path}

	fd, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("open evtx: %w", err)
	}
	defer fd.Close()

	chunks, err := evtx.GetChunks(fd)
	if err != nil {
		return nil, stats, fmt.Errorf("parse evtx %s: %w", path, err)
	}

	var arts []artifacts.Artifact
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return arts, stats, ctx.Err()
		}
		records, err := chunk.Parse(0)
		if err != nil {
			stats.Skipped++
			continue
		}
		for _, record := range records {
			eventMap, ok := record.Event.(*ordereddict.Dict)
			if !ok {
				stats.Skipped++
				continue
			}
			event, ok := dictGet(eventMap, "Event")
			if !ok {
				stats.Skipped++
				continue
			}
			art, ok := normalize(event, path, record.Header.FileTime)
			if !ok {
				stats.Skipped++
				continue
			}
			arts = append(arts, art)
			stats.Records++
		}
	}
	return arts, stats, nil
}

// normalize flattens one parsed event into an Artifact.
func normalize(event *ordereddict.Dict, file string, headerFiletime uint64) (artifacts.Artifact, bool) {
	system, ok := dictGet(event, "System")
	if !ok {
		return artifacts.Artifact{}, false
	}

	eventID := eventIDOf(system)
	channel := stringOf(system, "Channel")
	computer := stringOf(system, "Computer")
	provider := ""
	if p, ok := dictGet(system, "Provider"); ok {
		provider = stringOf(p, "Name")
	}

	ts := timeCreated(system)
	if ts.IsZero() {
		ts = regio.Filetime(headerFiletime)
	}

	fields := map[string]any{
		"event_id": eventID,
	}
	if recordID, ok := uintOf(system, "EventRecordID"); ok {
		fields["record_id"] = recordID
	}
	if level, ok := uintOf(system, "Level"); ok {
		fields["level"] = level
	}

	summary := fmt.Sprintf("EventID %d", eventID)
	if data, ok := dictGet(event, "EventData"); ok {
		for _, k := range data.Keys() {
			v, _ := data.Get(k)
			fields[k] = v
		}
		// Sysmon events carry the acting image; surface it as the
		// value an investigator scans first.
		for _, key := range []string{"Image", "CommandLine", "TargetFilename", "QueryName"} {
			if s := stringOf(data, key); s != "" {
				summary = s
				break
			}
		}
	}

	artType := "event_log"
	if strings.EqualFold(channel, SysmonChannel) {
		artType = "sysmon_event"
		if t, ok := sysmonTypes[eventID]; ok {
			artType = t
		}
	}

	return artifacts.Artifact{
		Type:      artType,
		Source:    channel,
		Path:      file,
		Name:      provider,
		Value:     summary,
		Timestamp: ts,
		Host:      computer,
		Fields:    fields,
	}, true
}

// dictGet fetches a nested *ordereddict.Dict member.
func dictGet(d *ordereddict.Dict, key string) (*ordereddict.Dict, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*ordereddict.Dict)
	return sub, ok
}

// eventIDOf handles both EventID shapes the BinXML expansion produces:
// a plain number, or a dict with a Value member when qualifiers are
// present.
func eventIDOf(system *ordereddict.Dict) int {
	v, ok := system.Get("EventID")
	if !ok {
		return 0
	}
	if sub, ok := v.(*ordereddict.Dict); ok {
		v, ok = sub.Get("Value")
		if !ok {
			return 0
		}
	}
	n, _ := toUint64(v)
	return int(n)
}

// timeCreated pulls TimeCreated/SystemTime out of the System block.
// The library emits it as epoch seconds (float) but string timestamps
// appear in logs converted by other tools.
func timeCreated(system *ordereddict.Dict) time.Time {
	tc, ok := dictGet(system, "TimeCreated")
	if !ok {
		return time.Time{}
	}
	v, ok := tc.Get("SystemTime")
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case float64:
		sec := int64(t)
		nsec := int64((t - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	case uint64:
		return time.Unix(int64(t), 0).UTC()
	case int64:
		return time.Unix(t, 0).UTC()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999 -0700 MST"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

func stringOf(d *ordereddict.Dict, key string) string {
	v, ok := d.Get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func uintOf(d *ordereddict.Dict, key string) (uint64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return toUint64(v)
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case float64:
		return uint64(n), true
	}
	return 0, false
}

// Expand resolves the configured EVTX paths: files are taken as-is,
// directories contribute every *.evtx inside.
func Expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("evtx source: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("evtx source: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".evtx") {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	return files, nil
}
