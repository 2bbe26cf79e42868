package winevt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Velocidex/ordereddict"
)

func systemBlock(eventID any, channel string, systemTime any) *ordereddict.Dict {
	system := ordereddict.NewDict().
		Set("EventID", eventID).
		Set("Channel", channel).
		Set("Computer", "WS-FINANCE-07").
		Set("EventRecordID", uint64(4711)).
		Set("Level", uint64(4)).
		Set("Provider", ordereddict.NewDict().Set("Name", "Microsoft-Windows-Sysmon"))
	if systemTime != nil {
		system.Set("TimeCreated", ordereddict.NewDict().Set("SystemTime", systemTime))
	}
	return system
}

func TestNormalize_SysmonProcessCreate(t *testing.T) {
	event := ordereddict.NewDict().
		Set("System", systemBlock(uint64(1), SysmonChannel, float64(1685606400))).
		Set("EventData", ordereddict.NewDict().
			Set("Image", `C:\Users\bob\AppData\Local\Temp\stage2.exe`).
			Set("CommandLine", `stage2.exe -p 443`))

	art, ok := normalize(event, "sysmon.evtx", 0)
	if !ok {
		t.Fatal("normalize rejected a valid event")
	}
	if art.Type != "sysmon_process_create" {
		t.Errorf("Type = %q, want sysmon_process_create", art.Type)
	}
	if art.Source != SysmonChannel {
		t.Errorf("Source = %q", art.Source)
	}
	if art.Value != `C:\Users\bob\AppData\Local\Temp\stage2.exe` {
		t.Errorf("Value = %q, want the Image field", art.Value)
	}
	if art.Host != "WS-FINANCE-07" {
		t.Errorf("Host = %q", art.Host)
	}
	want := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	if !art.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", art.Timestamp, want)
	}
	if art.Fields["event_id"] != 1 {
		t.Errorf("event_id = %v", art.Fields["event_id"])
	}
	if art.Fields["CommandLine"] != `stage2.exe -p 443` {
		t.Errorf("CommandLine = %v", art.Fields["CommandLine"])
	}
}

func TestNormalize_UnknownSysmonID(t *testing.T) {
	event := ordereddict.NewDict().
		Set("System", systemBlock(uint64(255), SysmonChannel, float64(1685606400)))

	art, ok := normalize(event, "sysmon.evtx", 0)
	if !ok {
		t.Fatal("normalize rejected event")
	}
	if art.Type != "sysmon_event" {
		t.Errorf("Type = %q, want generic sysmon_event", art.Type)
	}
}

func TestNormalize_PlainChannel(t *testing.T) {
	event := ordereddict.NewDict().
		Set("System", systemBlock(uint64(4624), "Security", float64(1685610000)))

	art, ok := normalize(event, "security.evtx", 0)
	if !ok {
		t.Fatal("normalize rejected event")
	}
	if art.Type != "event_log" {
		t.Errorf("Type = %q, want event_log", art.Type)
	}
	if art.Value != "EventID 4624" {
		t.Errorf("Value = %q", art.Value)
	}
	if art.Fields["level"] != uint64(4) {
		t.Errorf("level = %v", art.Fields["level"])
	}
}

func TestNormalize_HeaderFiletimeFallback(t *testing.T) {
	event := ordereddict.NewDict().
		Set("System", systemBlock(uint64(7), SysmonChannel, nil))

	// 2021-01-01T00:00:00Z as FILETIME ticks
	art, ok := normalize(event, "x.evtx", 132539328000000000)
	if !ok {
		t.Fatal("normalize rejected event")
	}
	want := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	if !art.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want header fallback %v", art.Timestamp, want)
	}
}

func TestNormalize_NoSystemBlock(t *testing.T) {
	event := ordereddict.NewDict().Set("EventData", ordereddict.NewDict())
	if _, ok := normalize(event, "x.evtx", 0); ok {
		t.Error("expected rejection without a System block")
	}
}

func TestEventIDOf_QualifiedForm(t *testing.T) {
	system := ordereddict.NewDict().
		Set("EventID", ordereddict.NewDict().
			Set("Qualifiers", uint64(16384)).
			Set("Value", uint64(7036)))
	if got := eventIDOf(system); got != 7036 {
		t.Errorf("eventIDOf = %d, want 7036", got)
	}

	plain := ordereddict.NewDict().Set("EventID", uint64(1))
	if got := eventIDOf(plain); got != 1 {
		t.Errorf("eventIDOf plain = %d, want 1", got)
	}

	if got := eventIDOf(ordereddict.NewDict()); got != 0 {
		t.Errorf("eventIDOf missing = %d, want 0", got)
	}
}

func TestTimeCreated_Forms(t *testing.T) {
	want := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		value any
	}{
		{"float_seconds", float64(1685606400)},
		{"uint_seconds", uint64(1685606400)},
		{"int_seconds", int64(1685606400)},
		{"rfc3339", "2023-06-01T08:00:00Z"},
	}
	for _, tc := range cases {
		system := ordereddict.NewDict().
			Set("TimeCreated", ordereddict.NewDict().Set("SystemTime", tc.value))
		if got := timeCreated(system); !got.Equal(want) {
			t.Errorf("%s: timeCreated = %v, want %v", tc.name, got, want)
		}
	}

	empty := ordereddict.NewDict()
	if !timeCreated(empty).IsZero() {
		t.Error("missing TimeCreated should yield zero time")
	}
}

func TestToUint64_Kinds(t *testing.T) {
	cases := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{uint64(7), 7, true},
		{int64(7), 7, true},
		{int(7), 7, true},
		{uint32(7), 7, true},
		{float64(7.0), 7, true},
		{"7", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := toUint64(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("toUint64(%v) = %d,%v want %d,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExpand_FilesAndDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Sysmon.evtx", "Security.EVTX", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	single := filepath.Join(dir, "Sysmon.evtx")

	files, err := Expand([]string{single, dir})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// the explicit file plus the two .evtx entries in the directory
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3: %v", len(files), files)
	}
	for _, f := range files[1:] {
		if filepath.Ext(f) == ".txt" {
			t.Errorf("non-evtx file leaked: %s", f)
		}
	}
}

func TestExpand_MissingPath(t *testing.T) {
	if _, err := Expand([]string{filepath.Join(t.TempDir(), "nope.evtx")}); err == nil {
		t.Error("expected error for missing path")
	}
}
