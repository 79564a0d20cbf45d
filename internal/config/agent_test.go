package config

import (
	"reflect"
	"testing"
)

var agentEnvKeys = []string{
	"CHROMIUM_CDP_ADDRESS", "CHROMIUM_CDP_PORT", "CHROMIUM_PROFILE_DIR",
	"SHIELD_BIND_ADDR", "SHIELD_PORT_AUTO_FALLBACK", "SHIELD_PORT_CANDIDATES",
	"SHIELD_CLASSIFIER_URL", "SHIELD_CLASSIFY_TIMEOUT_MS", "SHIELD_EVAL_TIMEOUT_MS",
	"SHIELD_DEBOUNCE_MS", "SHIELD_NOTICE_TTL_MS", "SHIELD_RESET_INTERVAL_MIN",
	"SHIELD_TAB_RESCAN_MS", "SHIELD_DATA_DIR", "SHIELD_HISTORY_BACKEND",
	"SHIELD_RULES_FILE", "SHIELD_RULES_WATCH", "SHIELD_REPORT_URL",
	"SHIELD_NOTIFY_URL", "SHIELD_CAPTURE_EVIDENCE", "SHIELD_LAUNCH_BROWSER",
	"SHIELD_START_URL", "SHIELD_LOG_LEVEL", "SHIELD_LOG_FILE",
}

func clearAgentEnv(t *testing.T) {
	t.Helper()
	for _, key := range agentEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadAgentDefaults(t *testing.T) {
	clearAgentEnv(t)

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}

	if cfg.CDPAddress != "127.0.0.1" || cfg.CDPPort != 9222 {
		t.Fatalf("CDP endpoint = %s:%d; want 127.0.0.1:9222", cfg.CDPAddress, cfg.CDPPort)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q; want 127.0.0.1:8190", cfg.BindAddr)
	}
	if !cfg.PortAutoFallback {
		t.Fatal("PortAutoFallback = false; want true by default")
	}
	want := []string{"127.0.0.1:8191", "127.0.0.1:8192"}
	if !reflect.DeepEqual(cfg.PortCandidates, want) {
		t.Fatalf("PortCandidates = %v; want %v", cfg.PortCandidates, want)
	}
	if cfg.ClassifierURL != "http://127.0.0.1:8000" {
		t.Fatalf("ClassifierURL = %q; want the local scoring endpoint", cfg.ClassifierURL)
	}
	if cfg.DebounceMS != 1000 || cfg.NoticeTTLMS != 5000 || cfg.ResetIntervalMin != 30 {
		t.Fatalf("check tuning = %d/%d/%d; want 1000/5000/30", cfg.DebounceMS, cfg.NoticeTTLMS, cfg.ResetIntervalMin)
	}
	if cfg.EvalTimeoutMS != 5000 || cfg.TabRescanMS != 2000 {
		t.Fatalf("browser tuning = %d/%d; want 5000/2000", cfg.EvalTimeoutMS, cfg.TabRescanMS)
	}
	if cfg.HistoryBackend != "file" {
		t.Fatalf("HistoryBackend = %q; want file", cfg.HistoryBackend)
	}
	if cfg.ReportURL == "" {
		t.Fatal("ReportURL empty; want a default report flow")
	}
	if cfg.LaunchBrowser || cfg.CaptureEvidence {
		t.Fatal("LaunchBrowser/CaptureEvidence = true; want off by default")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q; want info", cfg.LogLevel)
	}
}

func TestLoadAgentOverrides(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("SHIELD_BIND_ADDR", "0.0.0.0:9999")
	t.Setenv("SHIELD_CLASSIFIER_URL", "http://scoring.internal:8000")
	t.Setenv("SHIELD_DEBOUNCE_MS", "2500")
	t.Setenv("SHIELD_HISTORY_BACKEND", "SQLite")
	t.Setenv("SHIELD_RULES_FILE", "/etc/shield/rules.yaml")
	t.Setenv("SHIELD_CAPTURE_EVIDENCE", "true")
	t.Setenv("SHIELD_LOG_LEVEL", "DEBUG")

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}

	if cfg.BindAddr != "0.0.0.0:9999" {
		t.Fatalf("BindAddr = %q; want the override", cfg.BindAddr)
	}
	if cfg.ClassifierURL != "http://scoring.internal:8000" {
		t.Fatalf("ClassifierURL = %q; want the override", cfg.ClassifierURL)
	}
	if cfg.DebounceMS != 2500 {
		t.Fatalf("DebounceMS = %d; want 2500", cfg.DebounceMS)
	}
	if cfg.HistoryBackend != "sqlite" {
		t.Fatalf("HistoryBackend = %q; want lowercased sqlite", cfg.HistoryBackend)
	}
	if cfg.RulesFile != "/etc/shield/rules.yaml" {
		t.Fatalf("RulesFile = %q; want the override", cfg.RulesFile)
	}
	if !cfg.CaptureEvidence {
		t.Fatal("CaptureEvidence = false; want true")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q; want lowercased debug", cfg.LogLevel)
	}
}

func TestLoadAgentClampsFloors(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("SHIELD_CLASSIFY_TIMEOUT_MS", "50")
	t.Setenv("SHIELD_EVAL_TIMEOUT_MS", "10")
	t.Setenv("SHIELD_DEBOUNCE_MS", "5")
	t.Setenv("SHIELD_NOTICE_TTL_MS", "200")
	t.Setenv("SHIELD_RESET_INTERVAL_MIN", "0")
	t.Setenv("SHIELD_TAB_RESCAN_MS", "50")

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}

	if cfg.ClassifyTimeoutMS != 500 || cfg.EvalTimeoutMS != 500 {
		t.Fatalf("timeouts = %d/%d; want clamped to 500", cfg.ClassifyTimeoutMS, cfg.EvalTimeoutMS)
	}
	if cfg.DebounceMS != 50 {
		t.Fatalf("DebounceMS = %d; want clamped to 50", cfg.DebounceMS)
	}
	if cfg.NoticeTTLMS != 1000 {
		t.Fatalf("NoticeTTLMS = %d; want clamped to 1000", cfg.NoticeTTLMS)
	}
	if cfg.ResetIntervalMin != 1 {
		t.Fatalf("ResetIntervalMin = %d; want clamped to 1", cfg.ResetIntervalMin)
	}
	if cfg.TabRescanMS != 250 {
		t.Fatalf("TabRescanMS = %d; want clamped to 250", cfg.TabRescanMS)
	}
}

func TestLoadAgentUnknownBackendFallsBack(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("SHIELD_HISTORY_BACKEND", "postgres")

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}
	if cfg.HistoryBackend != "file" {
		t.Fatalf("HistoryBackend = %q; want fallback to file", cfg.HistoryBackend)
	}
}

func TestSplitCandidates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"bare_ports_promoted", "8191,8192", []string{"127.0.0.1:8191", "127.0.0.1:8192"}},
		{"full_addresses_kept", "0.0.0.0:7000,127.0.0.1:7001", []string{"0.0.0.0:7000", "127.0.0.1:7001"}},
		{"mixed", "9000, 0.0.0.0:7000", []string{"127.0.0.1:9000", "0.0.0.0:7000"}},
		{"whitespace_and_empties", " 127.0.0.1:9000 ,, ", []string{"127.0.0.1:9000"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitCandidates(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("splitCandidates(%q) = %v; want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAgentCDPURL(t *testing.T) {
	cfg := &AgentConfig{CDPAddress: "127.0.0.1", CDPPort: 9222}
	if got := cfg.AgentCDPURL(); got != "http://127.0.0.1:9222" {
		t.Fatalf("AgentCDPURL() = %q; want http://127.0.0.1:9222", got)
	}
}
