package config

import (
	"strconv"
	"strings"
)

// AgentConfig holds configuration for the shield agent daemon.
type AgentConfig struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// API bind settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Classifier endpoint
	ClassifierURL     string
	ClassifyTimeoutMS int

	// Tab script evaluation
	EvalTimeoutMS int

	// Navigation check behavior
	DebounceMS       int
	NoticeTTLMS      int
	ResetIntervalMin int
	TabRescanMS      int

	// Persistence
	DataDir        string
	HistoryBackend string

	// Ignore rules
	RulesFile  string
	RulesWatch bool

	// Phishing verdict side effects
	ReportURL       string
	NotifyURL       string
	CaptureEvidence bool

	// Managed browser
	LaunchBrowser bool
	ProfileDir    string
	StartURL      string

	// Logging
	LogLevel string
	LogFile  string
}

// LoadAgent reads agent configuration from environment variables and an
// optional .env file.
func LoadAgent() (*AgentConfig, error) {
	LoadDotenv()

	cfg := &AgentConfig{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:          getEnvOrDefault("SHIELD_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback:  getEnvBoolOrDefault("SHIELD_PORT_AUTO_FALLBACK", true),
		ClassifierURL:     getEnvOrDefault("SHIELD_CLASSIFIER_URL", "http://127.0.0.1:8000"),
		ClassifyTimeoutMS: getEnvIntOrDefault("SHIELD_CLASSIFY_TIMEOUT_MS", 5000),
		EvalTimeoutMS:     getEnvIntOrDefault("SHIELD_EVAL_TIMEOUT_MS", 5000),
		DebounceMS:        getEnvIntOrDefault("SHIELD_DEBOUNCE_MS", 1000),
		NoticeTTLMS:       getEnvIntOrDefault("SHIELD_NOTICE_TTL_MS", 5000),
		ResetIntervalMin:  getEnvIntOrDefault("SHIELD_RESET_INTERVAL_MIN", 30),
		TabRescanMS:       getEnvIntOrDefault("SHIELD_TAB_RESCAN_MS", 2000),
		DataDir:           getEnvOrDefault("SHIELD_DATA_DIR", "./data"),
		HistoryBackend:    strings.ToLower(getEnvOrDefault("SHIELD_HISTORY_BACKEND", "file")),
		RulesFile:         getEnvOrDefault("SHIELD_RULES_FILE", ""),
		RulesWatch:        getEnvBoolOrDefault("SHIELD_RULES_WATCH", true),
		ReportURL:         getEnvOrDefault("SHIELD_REPORT_URL", "https://safebrowsing.google.com/safebrowsing/report_phish/"),
		NotifyURL:         getEnvOrDefault("SHIELD_NOTIFY_URL", ""),
		CaptureEvidence:   getEnvBoolOrDefault("SHIELD_CAPTURE_EVIDENCE", false),
		LaunchBrowser:     getEnvBoolOrDefault("SHIELD_LAUNCH_BROWSER", false),
		ProfileDir:        getEnvOrDefault("CHROMIUM_PROFILE_DIR", "./chromium-profile"),
		StartURL:          getEnvOrDefault("SHIELD_START_URL", ""),
		LogLevel:          strings.ToLower(getEnvOrDefault("SHIELD_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("SHIELD_LOG_FILE", "logs/shield_agent.log"),
	}

	cfg.PortCandidates = splitCandidates(getEnvOrDefault("SHIELD_PORT_CANDIDATES", "127.0.0.1:8191,127.0.0.1:8192"))

	if cfg.ClassifyTimeoutMS < 500 {
		cfg.ClassifyTimeoutMS = 500
	}
	if cfg.EvalTimeoutMS < 500 {
		cfg.EvalTimeoutMS = 500
	}
	if cfg.DebounceMS < 50 {
		cfg.DebounceMS = 50
	}
	if cfg.NoticeTTLMS < 1000 {
		cfg.NoticeTTLMS = 1000
	}
	if cfg.ResetIntervalMin < 1 {
		cfg.ResetIntervalMin = 1
	}
	if cfg.TabRescanMS < 250 {
		cfg.TabRescanMS = 250
	}
	if cfg.HistoryBackend != "file" && cfg.HistoryBackend != "sqlite" {
		cfg.HistoryBackend = "file"
	}

	return cfg, nil
}

// AgentCDPURL returns the CDP endpoint URL for agent use.
func (c *AgentConfig) AgentCDPURL() string {
	return CDPURL(c.CDPAddress, c.CDPPort)
}

// splitCandidates parses a comma-separated bind address list. Bare port
// numbers are promoted to loopback addresses.
func splitCandidates(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil {
			part = "127.0.0.1:" + part
		}
		out = append(out, part)
	}
	return out
}
