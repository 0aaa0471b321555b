package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/config"
	"github.com/janekbaraniewski/usagewatch/internal/gateway"
	"github.com/janekbaraniewski/usagewatch/internal/history"
	"github.com/janekbaraniewski/usagewatch/internal/meter"
	"github.com/janekbaraniewski/usagewatch/internal/notify"
	"github.com/janekbaraniewski/usagewatch/internal/poller"
	"github.com/janekbaraniewski/usagewatch/internal/retry"
	"github.com/janekbaraniewski/usagewatch/internal/signin"
	"github.com/janekbaraniewski/usagewatch/internal/transport"
)

// app owns the wired component graph for one process.
type app struct {
	Config  config.Config
	Store   *history.Store
	Gateway *gateway.Gateway
	Engine  *meter.Engine
	Poller  *poller.Poller
	SignIn  *signin.Manager

	watcher *config.Watcher
}

func historyPath() string {
	return filepath.Join(config.ConfigDir(), "history.db")
}

func buildApp(cfg config.Config) (*app, error) {
	credStore := config.NewCredentialStore(config.CredentialPath())
	if err := config.MigrateLegacyCookie(context.Background(), config.ConfigPath(), credStore); err != nil {
		log.Printf("[app] legacy cookie migration: %v", err)
	}

	store, err := history.OpenStore(historyPath())
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	exec := retry.New(retry.Config{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		BackoffFactor: cfg.Retry.BackoffFactor,
		Jitter:        cfg.Retry.Jitter,
	})

	gw := gateway.New(gateway.Config{
		TenantBaseURL:  cfg.TenantBaseURL,
		DefaultBaseURL: cfg.BaseURL,
	}, transport.NewClient(), exec, credStore)

	notifier := notify.New(cfg.NotificationThresholds, store, notify.SinkFunc(func(threshold int, percent float64) {
		// Threshold announcements go to the log; the desktop/status-bar
		// collaborator subscribes through Engine.OnUpdate.
		log.Printf("[notify] usage crossed %d%% (now %.1f%%)", threshold, percent)
	}))

	engine := meter.New(gw, store, notifier)
	gw.LoadPersisted(context.Background())

	pol := poller.New(poller.NewTimerScheduler(),
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
		engine.Refresh, engine.Cleanup)

	gw.OnAuthChange(func(bool) {
		pol.TriggerRefreshSoon(context.Background(), 0, poller.SourceAuthChange)
	})

	a := &app{
		Config:  cfg,
		Store:   store,
		Gateway: gw,
		Engine:  engine,
		Poller:  pol,
		SignIn:  signin.New(gw, cookieDomain(cfg.BaseURL), time.Duration(cfg.SignInWatchTimeoutMs)*time.Millisecond),
	}

	watcher, err := config.Watch(config.ConfigPath(), func() {
		fresh, err := config.Load()
		if err != nil {
			log.Printf("[app] reloading config: %v", err)
			return
		}
		pol.SetInterval(time.Duration(fresh.PollIntervalSeconds) * time.Second)
		pol.TriggerRefreshSoon(context.Background(), 0, poller.SourceConfigChange)
	})
	if err != nil {
		log.Printf("[app] config watch unavailable: %v", err)
	} else {
		a.watcher = watcher
	}

	return a, nil
}

// cookieDomain derives the browser-cookie domain from the API base URL.
func cookieDomain(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "devmeter.ai"
	}
	host := u.Hostname()
	// api.devmeter.ai → devmeter.ai so cookies set on the site itself match.
	if len(host) > 4 && host[:4] == "api." {
		host = host[4:]
	}
	return host
}

func (a *app) Start() {
	a.Poller.Start(context.Background())
}

func (a *app) Close() {
	a.Poller.Stop()
	if a.watcher != nil {
		a.watcher.Close()
	}
	if err := a.Store.Close(); err != nil {
		log.Printf("[app] closing history store: %v", err)
	}
}
