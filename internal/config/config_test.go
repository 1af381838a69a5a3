package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// Project values win over global values, which win over defaults.
func TestConfigMergePrecedence(t *testing.T) {
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,20}`)

	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasAPIURL") {
			cfg.APIURL = nonEmptyString.Draw(t, "apiURL")
		}
		if rapid.Bool().Draw(t, "hasSessionCalendar") {
			cfg.SessionCalendar = nonEmptyString.Draw(t, "sessionCalendar")
		}
		if rapid.Bool().Draw(t, "hasSlotMinutes") {
			cfg.SlotMinutes = rapid.IntRange(1, 120).Draw(t, "slotMinutes")
		}
		if rapid.Bool().Draw(t, "hasIgnoreAFK") {
			v := rapid.Bool().Draw(t, "ignoreAFK")
			cfg.IgnoreAFK = &v
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkField(t, "APIURL", global.APIURL, project.APIURL, defaults.APIURL, merged.APIURL)
		checkField(t, "SessionCalendar", global.SessionCalendar, project.SessionCalendar,
			defaults.SessionCalendar, merged.SessionCalendar)
		checkField(t, "SlotMinutes", global.SlotMinutes, project.SlotMinutes,
			defaults.SlotMinutes, merged.SlotMinutes)

		wantAFK := *defaults.IgnoreAFK
		if global.IgnoreAFK != nil {
			wantAFK = *global.IgnoreAFK
		}
		if project.IgnoreAFK != nil {
			wantAFK = *project.IgnoreAFK
		}
		if merged.IgnoresAFK() != wantAFK {
			t.Fatalf("IgnoreAFK: want %v, got %v", wantAFK, merged.IgnoresAFK())
		}
	})
}

// checkField asserts the merge precedence rule for a single field:
//   - project set → merged == project
//   - project unset, global set → merged == global
//   - both unset → merged == defaultVal
func checkField[T comparable](t *rapid.T, name string, globalVal, projectVal, defaultVal, mergedVal T) {
	t.Helper()
	var zero T
	switch {
	case projectVal != zero:
		if mergedVal != projectVal {
			t.Fatalf("%s: expected project value %v, got %v", name, projectVal, mergedVal)
		}
	case globalVal != zero:
		if mergedVal != globalVal {
			t.Fatalf("%s: expected global value %v, got %v", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: expected default %v, got %v", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if d.SlotWidth().Minutes() != 15 || d.MinCoverage().Minutes() != 3 || d.Padding().Minutes() != 1 {
		t.Errorf("grid defaults: got slot=%v coverage=%v padding=%v", d.SlotWidth(), d.MinCoverage(), d.Padding())
	}
	if d.NoiseThreshold().Seconds() != 10 || d.MergeGapTolerance().Seconds() != 666 || d.MinSession().Seconds() != 90 {
		t.Errorf("session defaults: got noise=%v gap=%v min=%v", d.NoiseThreshold(), d.MergeGapTolerance(), d.MinSession())
	}
	if !d.IgnoresAFK() {
		t.Error("IgnoreAFK: want true by default")
	}
	if got := d.Routes().Destination("Media"); got != "[log] Dopamine" {
		t.Errorf("Media routes to %q", got)
	}
	if got := d.Routes().Destination("Finances & Buying shit"); got != "[log] Work/Productivity" {
		t.Errorf("Finances & Buying shit routes to %q", got)
	}
	if got := d.Routes().Destination("BS"); got != "[log] FIXME" {
		t.Errorf("BS routes to %q", got)
	}
	if got := d.Aliases().Display("ai.perplexity.app"); got != "Perplexity AI (iPhone)" {
		t.Errorf("perplexity alias: %q", got)
	}
	if got := d.Routes().Destination("Gaming"); got != d.FallbackCalendar {
		t.Errorf("unknown category routes to %q, want fallback", got)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if cfg.APIURL != Defaults().APIURL {
		t.Errorf("APIURL: want %q, got %q", Defaults().APIURL, cfg.APIURL)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func writeGlobal(t *testing.T, content string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "awcal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, GlobalFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	writeGlobal(t, "slot_minutes: [unterminated\n")

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid YAML, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestLoadLayersFilesAndEnvironment(t *testing.T) {
	writeGlobal(t, `
api_url: http://global:5600/api/0
slot_minutes: 30
padding_minutes: 0
ignore_afk: false
category_calendars:
  - category: Work
    calendar: Deep Work
`)
	project := t.TempDir()
	chdir(t, project)
	if err := os.WriteFile(ProjectFile, []byte("slot_minutes: 20\nreport_format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AWCAL_API_URL", "http://env:5600/api/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://env:5600/api/0" {
		t.Errorf("APIURL: got %q, want env override", cfg.APIURL)
	}
	if cfg.SlotMinutes != 20 {
		t.Errorf("SlotMinutes: got %d, want project value 20", cfg.SlotMinutes)
	}
	if cfg.Padding() != 0 {
		t.Errorf("Padding: got %v, want explicit 0", cfg.Padding())
	}
	if cfg.IgnoresAFK() {
		t.Error("IgnoreAFK: want global false")
	}
	if cfg.ReportFormat != "json" {
		t.Errorf("ReportFormat: got %q", cfg.ReportFormat)
	}
	// Category names keep their case.
	if got := cfg.Routes().Destination("Work"); got != "Deep Work" {
		t.Errorf("Work routes to %q", got)
	}
}

func TestLoadKeepsExplicitZeroThresholds(t *testing.T) {
	writeGlobal(t, "noise_threshold_seconds: 25\nmin_session_seconds: 120\n")
	chdir(t, t.TempDir())
	content := `
noise_threshold_seconds: 0
min_slot_coverage_minutes: 0
merge_gap_tolerance_seconds: 0
min_session_seconds: 0
`
	if err := os.WriteFile(ProjectFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NoiseThreshold() != 0 || cfg.MinCoverage() != 0 || cfg.MergeGapTolerance() != 0 || cfg.MinSession() != 0 {
		t.Errorf("explicit zeros overridden: noise=%v coverage=%v gap=%v min=%v",
			cfg.NoiseThreshold(), cfg.MinCoverage(), cfg.MergeGapTolerance(), cfg.MinSession())
	}
}

func TestValidateRejectsOversizedPadding(t *testing.T) {
	cfg := Defaults()
	p := 8
	cfg.PaddingMinutes = &p
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected padding error for 2*8m >= 15m slot")
	}
	cfg = Defaults()
	cfg.MinSlotCoverageMinutes = intPtr(16)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected coverage error for 16m in a 15m slot")
	}
	cfg = Defaults()
	cfg.ReportFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected report_format error")
	}
}
