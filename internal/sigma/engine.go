// Package sigma evaluates Sigma detection rules against normalized
// artifacts.
package sigma

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigmalib "github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"

	"github.com/forenlab/regtriage/internal/artifacts"
)

//go:embed rules
var embeddedRules embed.FS

// Engine evaluates Sigma rules against collected artifacts.
type Engine struct {
	rules []evaluator.RuleEvaluator
}

// NewDefault creates an Engine loaded with the built-in embedded Sigma
// rules plus, when rulesDir is non-empty, every rule file under it.
func NewDefault(rulesDir string) (*Engine, error) {
	sub, err := fs.Sub(embeddedRules, "rules")
	if err != nil {
		return nil, err
	}
	engine, err := New(sub)
	if err != nil {
		return nil, err
	}
	if rulesDir != "" {
		extra, err := New(os.DirFS(rulesDir))
		if err != nil {
			return nil, err
		}
		engine.rules = append(engine.rules, extra.rules...)
	}
	return engine, nil
}

// New creates an Engine by loading Sigma rules from the given FS.
// All .yml/.yaml files are parsed as Sigma rules.
func New(rulesFS fs.FS) (*Engine, error) {
	var rules []evaluator.RuleEvaluator

	err := fs.WalkDir(rulesFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		data, err := fs.ReadFile(rulesFS, path)
		if err != nil {
			return err
		}
		rule, err := sigmalib.ParseRule(data)
		if err != nil {
			return err
		}
		rules = append(rules, *evaluator.ForRule(rule))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Engine{rules: rules}, nil
}

// MatchAll evaluates all rules against each artifact and returns the
// matches. Rules are scoped by logsource: category must equal the
// artifact source (collector ID), service must equal the event log
// channel.
func (e *Engine) MatchAll(ctx context.Context, arts []artifacts.Artifact) []Match {
	var matches []Match
	for i := range arts {
		event := flatten(&arts[i])
		for _, ev := range e.rules {
			if !scopeMatches(&ev, &arts[i]) {
				continue
			}
			res, err := ev.Matches(ctx, event)
			if err != nil || !res.Match {
				continue
			}
			matches = append(matches, Match{
				Source:    arts[i].Source,
				RuleTitle: ev.Rule.Title,
				RuleID:    ev.Rule.ID,
				Level:     ev.Rule.Level,
				Event:     event,
			})
		}
	}
	return matches
}

func scopeMatches(ev *evaluator.RuleEvaluator, art *artifacts.Artifact) bool {
	if cat := ev.Rule.Logsource.Category; cat != "" && cat != art.Source && cat != art.Type {
		return false
	}
	if svc := ev.Rule.Logsource.Service; svc != "" && !strings.EqualFold(svc, art.Source) {
		return false
	}
	return true
}

// flatten turns an artifact into the flat event map Sigma conditions
// address: the core record fields by lowercase name, plus every
// source-specific field under its own key.
func flatten(art *artifacts.Artifact) map[string]any {
	event := map[string]any{
		"type":   art.Type,
		"source": art.Source,
		"path":   art.Path,
		"name":   art.Name,
		"value":  art.Value,
	}
	if !art.Timestamp.IsZero() {
		event["timestamp"] = art.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	for k, v := range art.Fields {
		event[k] = v
	}
	return event
}
