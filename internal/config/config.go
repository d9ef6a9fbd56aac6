// Package config loads, validates, and rewrites .gitmem/config.json: the
// per-workspace AI mode, index start date, model selection, and optional
// default scope.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/errs"
	"github.com/jmcdonald-ut/gitmem/internal/scope"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileName is config.json's name inside the workspace's .gitmem directory.
const FileName = "config.json"

// DefaultIndexModel and DefaultCheckModel are used when config.json omits
// indexModel/checkModel.
const (
	DefaultIndexModel = "claude-sonnet-4-5"
	DefaultCheckModel = "claude-sonnet-4-5"
)

// AIMode is the three-state reading of the "ai" config key: disabled,
// enabled for everything, or enabled only from a cutoff date forward.
type AIMode struct {
	Enabled bool
	Since   *time.Time // non-nil only when the config value was a date string
}

// IsDisabled reports whether AI enrichment is off entirely.
func (m AIMode) IsDisabled() bool { return !m.Enabled }

// Config is the typed, validated contents of config.json.
type Config struct {
	AI             AIMode
	IndexStartDate *time.Time
	IndexModel     string
	CheckModel     string
	Scope          scope.Scope
}

// raw is config.json's on-disk shape before AI-mode interpretation.
type raw struct {
	AI             json.RawMessage `json:"ai"`
	IndexStartDate *string         `json:"indexStartDate"`
	IndexModel     string          `json:"indexModel"`
	CheckModel     string          `json:"checkModel"`
	Scope          *scope.Scope    `json:"scope,omitempty"`
}

// Path returns the config.json path for a workspace directory.
func Path(workspaceDir string) string {
	return filepath.Join(workspaceDir, FileName)
}

// Load reads and validates config.json. A missing file is reported as
// errs.NotInitialized, per spec.md §6.
func Load(workspaceDir string) (*Config, error) {
	data, err := os.ReadFile(Path(workspaceDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotInitialized)
		}
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errs.Wrap(errs.ConfigInvalid, err)
	}

	ai, err := parseAIMode(r.AI)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigInvalid, err)
	}

	var indexStart *time.Time
	if r.IndexStartDate != nil && *r.IndexStartDate != "" {
		t, err := time.Parse("2006-01-02", *r.IndexStartDate)
		if err != nil {
			return nil, errs.Wrap(errs.ConfigInvalid, fmt.Errorf("indexStartDate: %w", err))
		}
		indexStart = &t
	}

	indexModel := r.IndexModel
	if indexModel == "" {
		indexModel = DefaultIndexModel
	}
	checkModel := r.CheckModel
	if checkModel == "" {
		checkModel = DefaultCheckModel
	}

	cfg := &Config{
		AI:             ai,
		IndexStartDate: indexStart,
		IndexModel:     indexModel,
		CheckModel:     checkModel,
	}
	if r.Scope != nil {
		cfg.Scope = *r.Scope
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseAIMode interprets the "ai" key: a JSON boolean, or an ISO date
// string meaning "enrich only commits on or after X".
func parseAIMode(raw json.RawMessage) (AIMode, error) {
	if len(raw) == 0 {
		return AIMode{Enabled: true}, nil // absent key defaults to enabled
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return AIMode{Enabled: asBool}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		t, err := time.Parse("2006-01-02", asString)
		if err != nil {
			return AIMode{}, fmt.Errorf(`"ai" date string %q is not a valid ISO date: %w`, asString, err)
		}
		return AIMode{Enabled: true, Since: &t}, nil
	}

	return AIMode{}, fmt.Errorf(`"ai" must be a boolean or an ISO date string, got %s`, string(raw))
}

func (c *Config) validate() error {
	if c.IndexModel == "" {
		return errs.Newf(errs.ConfigInvalid, "indexModel must not be empty")
	}
	if c.CheckModel == "" {
		return errs.Newf(errs.ConfigInvalid, "checkModel must not be empty")
	}
	return nil
}

// Save rewrites config.json, preserving any unknown top-level keys
// already present on disk (gjson/sjson drive the rewrite so nothing the
// user added by hand is clobbered).
func Save(workspaceDir string, cfg *Config) error {
	path := Path(workspaceDir)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read existing config.json: %w", err)
	}
	doc := string(existing)
	if doc == "" {
		doc = "{}"
	}

	var setErr error
	set := func(key string, value any) {
		if setErr != nil {
			return
		}
		doc, setErr = sjson.Set(doc, key, value)
	}

	if cfg.AI.Since != nil {
		set("ai", cfg.AI.Since.Format("2006-01-02"))
	} else {
		set("ai", cfg.AI.Enabled)
	}
	if cfg.IndexStartDate != nil {
		set("indexStartDate", cfg.IndexStartDate.Format("2006-01-02"))
	} else {
		doc, setErr = sjson.Delete(doc, "indexStartDate")
	}
	set("indexModel", cfg.IndexModel)
	set("checkModel", cfg.CheckModel)
	if !cfg.Scope.IsEmpty() {
		set("scope.include", cfg.Scope.Include)
		set("scope.exclude", cfg.Scope.Exclude)
	}
	if setErr != nil {
		return fmt.Errorf("rewrite config.json: %w", setErr)
	}

	if !gjson.Valid(doc) {
		return fmt.Errorf("rewrite config.json: produced invalid JSON")
	}
	return os.WriteFile(path, []byte(doc+"\n"), 0644)
}

// Coverage is the three-valued reading of a workspace's enrichment state,
// per spec.md §9: disabled, full, or partial with counts.
type Coverage struct {
	State     CoverageState
	Enriched  int
	Total     int
	AIConfig  AIMode
}

// CoverageState distinguishes the three coverage states.
type CoverageState string

const (
	CoverageDisabled CoverageState = "disabled"
	CoverageFull     CoverageState = "full"
	CoveragePartial  CoverageState = "partial"
)

// ComputeCoverage derives the workspace's coverage state from its AI
// config and the discovered/enriched commit counts.
func ComputeCoverage(ai AIMode, enriched, total int) Coverage {
	if ai.IsDisabled() {
		return Coverage{State: CoverageDisabled, AIConfig: ai}
	}
	if enriched >= total {
		return Coverage{State: CoverageFull, Enriched: enriched, Total: total, AIConfig: ai}
	}
	return Coverage{State: CoveragePartial, Enriched: enriched, Total: total, AIConfig: ai}
}
