package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/phishshield/shield_agent/internal/api"
	"github.com/phishshield/shield_agent/internal/browser"
	"github.com/phishshield/shield_agent/internal/cdp"
	"github.com/phishshield/shield_agent/internal/classifier"
	"github.com/phishshield/shield_agent/internal/config"
	"github.com/phishshield/shield_agent/internal/evidence"
	"github.com/phishshield/shield_agent/internal/guard"
	"github.com/phishshield/shield_agent/internal/history"
	"github.com/phishshield/shield_agent/internal/netutil"
	"github.com/phishshield/shield_agent/internal/notify"
	"github.com/phishshield/shield_agent/internal/rules"
	"github.com/phishshield/shield_agent/internal/scheduler"
	"github.com/phishshield/shield_agent/internal/storage"
	"github.com/phishshield/shield_agent/internal/tabtrack"
)

func main() {
	cfg, err := config.LoadAgent()
	if err != nil {
		slog.Error("failed to load agent config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("agent config loaded",
		"cdp_url", cfg.AgentCDPURL(),
		"bind_addr", cfg.BindAddr,
		"classifier_url", cfg.ClassifierURL,
		"debounce_ms", cfg.DebounceMS,
		"reset_interval_min", cfg.ResetIntervalMin,
		"history_backend", cfg.HistoryBackend,
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		launchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := launcher.Launch(launchCtx)
		cancel()
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	kv, err := openKV(cfg)
	if err != nil {
		slog.Error("failed to open history store", "backend", cfg.HistoryBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = kv.Close() }()

	verdicts, err := storage.NewVerdictWriter(filepath.Join(cfg.DataDir, "verdicts"), 256, 50)
	if err != nil {
		slog.Error("failed to open verdict log", "error", err)
		os.Exit(1)
	}
	defer func() { _ = verdicts.Close() }()

	var shots *evidence.Store
	if cfg.CaptureEvidence {
		shots, err = evidence.NewStore(filepath.Join(cfg.DataDir, "evidence"))
		if err != nil {
			slog.Error("failed to open evidence store", "error", err)
			os.Exit(1)
		}
	}

	ruleSet, err := rules.Load(cfg.RulesFile)
	if err != nil {
		slog.Error("failed to load ignore rules", "file", cfg.RulesFile, "error", err)
		os.Exit(1)
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if cfg.RulesFile != "" && cfg.RulesWatch {
		go func() {
			if err := ruleSet.Watch(watchCtx); err != nil {
				slog.Warn("rules watcher stopped", "error", err)
			}
		}()
	}

	cls := classifier.New(cfg.ClassifierURL, time.Duration(cfg.ClassifyTimeoutMS)*time.Millisecond)
	notifier := &notify.Notifier{Endpoint: cfg.NotifyURL}

	var svc *guard.Service
	watcher := cdp.NewWatcher(cfg.AgentCDPURL(),
		time.Duration(cfg.TabRescanMS)*time.Millisecond,
		time.Duration(cfg.EvalTimeoutMS)*time.Millisecond,
		cdp.Handlers{
			OnNavigated: func(ev cdp.NavigationEvent) { svc.OnNavigation(ev.TabID, ev.URL, ev.IsReload) },
			OnActivated: func(ev cdp.ActivationEvent) { svc.OnActivation(ev.TabID, ev.URL) },
			OnAction:    func(ev cdp.ActionEvent) { svc.OnOverlayAction(ev.TabID, ev.Action) },
			OnTabClosed: func(tabID string) { svc.OnTabClosed(tabID) },
		})

	svc = guard.NewService(guard.Options{
		DebounceWindow:  time.Duration(cfg.DebounceMS) * time.Millisecond,
		NoticeTTL:       time.Duration(cfg.NoticeTTLMS) * time.Millisecond,
		ReportURL:       cfg.ReportURL,
		CaptureEvidence: cfg.CaptureEvidence,
	}, guard.Deps{
		Browser:     watcher,
		Classifier:  cls,
		OverlayPort: cdp.NewBannerPort(watcher),
		Tabs:        tabtrack.New(),
		History:     history.NewLog(kv),
		Rules:       ruleSet,
		Verdicts:    verdicts,
		Evidence:    shots,
		Notifier:    notifier,
	})
	defer svc.Stop()

	if err := watcher.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.AgentCDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = watcher.Close() }()

	sched := scheduler.New()
	if err := sched.Every("tab-tracking-reset", time.Duration(cfg.ResetIntervalMin)*time.Minute, svc.ResetTabs); err != nil {
		slog.Error("failed to schedule tab reset", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, svc.Broker(), watcher)}

	go func() {
		slog.Info("agent listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("agent server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("agent shutdown failed", "error", err)
	}
}

func openKV(cfg *config.AgentConfig) (storage.KV, error) {
	if cfg.HistoryBackend == "sqlite" {
		return storage.NewSQLiteKV(filepath.Join(cfg.DataDir, "shield.db"))
	}
	return storage.NewFileKV(filepath.Join(cfg.DataDir, "kv"))
}

func setupLogger(level, filename string) error {
	if dir := filepath.Dir(filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
