package sigma

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
)

const tempPathRule = `title: Autostart from temp directory
id: 0a18d1f2-3b6c-4a6e-9c41-5f2d8c0e7a11
status: test
level: high
logsource:
  category: run_keys
detection:
  selection:
    value|contains: '\Temp\'
  condition: selection
`

const sysmonServiceRule = `title: Sysmon process from users directory
id: 2c47e0aa-9d15-4a0f-8a3e-6b1f0d9c2e55
status: test
level: medium
logsource:
  service: Microsoft-Windows-Sysmon/Operational
detection:
  selection:
    type: sysmon_process_create
    value|contains: '\Users\'
  condition: selection
`

func rulesFS(rules map[string]string) fstest.MapFS {
	m := fstest.MapFS{}
	for name, body := range rules {
		m[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return m
}

func TestNew_LoadsRulesFromFS(t *testing.T) {
	engine, err := New(rulesFS(map[string]string{
		"temp.yml":    tempPathRule,
		"sysmon.yaml": sysmonServiceRule,
		"readme.md":   "not a rule",
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(engine.rules) != 2 {
		t.Errorf("got %d rules, want 2", len(engine.rules))
	}
}

func TestNew_BadRuleFails(t *testing.T) {
	if _, err := New(rulesFS(map[string]string{"bad.yml": ":\nnot yaml: ["})); err == nil {
		t.Error("expected parse error")
	}
}

func TestNewDefault_EmbeddedRules(t *testing.T) {
	engine, err := NewDefault("")
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	if len(engine.rules) == 0 {
		t.Error("no embedded rules loaded")
	}
}

func TestMatchAll_CategoryScope(t *testing.T) {
	engine, err := New(rulesFS(map[string]string{"temp.yml": tempPathRule}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	arts := []artifacts.Artifact{
		{
			Type:   "autostart",
			Source: "run_keys",
			Name:   "Updater",
			Value:  `C:\Users\bob\AppData\Local\Temp\upd.exe`,
		},
		{
			Type:   "autostart",
			Source: "run_keys",
			Name:   "SecurityHealth",
			Value:  `C:\Windows\System32\SecurityHealthSystray.exe`,
		},
		{
			// same value, wrong source: category scope must exclude it
			Type:   "mui_cache",
			Source: "mui_cache",
			Value:  `C:\Users\bob\AppData\Local\Temp\upd.exe`,
		},
	}

	matches := engine.MatchAll(context.Background(), arts)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	m := matches[0]
	if m.RuleTitle != "Autostart from temp directory" {
		t.Errorf("RuleTitle = %q", m.RuleTitle)
	}
	if m.Level != "high" {
		t.Errorf("Level = %q", m.Level)
	}
	if m.Source != "run_keys" {
		t.Errorf("Source = %q", m.Source)
	}
	if m.Event["name"] != "Updater" {
		t.Errorf("Event name = %v", m.Event["name"])
	}
}

func TestMatchAll_ServiceScope(t *testing.T) {
	engine, err := New(rulesFS(map[string]string{"sysmon.yml": sysmonServiceRule}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	arts := []artifacts.Artifact{
		{
			Type:   "sysmon_process_create",
			Source: "Microsoft-Windows-Sysmon/Operational",
			Value:  `C:\Users\bob\Downloads\payload.exe`,
		},
		{
			// matching shape but a different channel
			Type:   "sysmon_process_create",
			Source: "Security",
			Value:  `C:\Users\bob\Downloads\payload.exe`,
		},
	}

	matches := engine.MatchAll(context.Background(), arts)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Source != "Microsoft-Windows-Sysmon/Operational" {
		t.Errorf("Source = %q", matches[0].Source)
	}
}

func TestFlatten_FieldsAndTimestamp(t *testing.T) {
	ts := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	art := artifacts.Artifact{
		Type:      "service",
		Source:    "services",
		Name:      "ShadySvc",
		Value:     `C:\Users\Public\loader.exe`,
		Timestamp: ts,
		Fields:    map[string]any{"non_system_path": true},
	}

	event := flatten(&art)
	if event["type"] != "service" || event["name"] != "ShadySvc" {
		t.Errorf("event = %v", event)
	}
	if event["non_system_path"] != true {
		t.Error("source-specific field missing")
	}
	if event["timestamp"] != "2023-06-01T08:00:00Z" {
		t.Errorf("timestamp = %v", event["timestamp"])
	}

	undated := artifacts.Artifact{Type: "recent_doc", Source: "recent_docs"}
	if _, ok := flatten(&undated)["timestamp"]; ok {
		t.Error("zero timestamp must not appear in the event")
	}
}
