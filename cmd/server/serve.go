package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/goals-api/internal/apidocs"
	"github.com/keithlinneman/goals-api/internal/cfg"
	"github.com/keithlinneman/goals-api/internal/features"
	"github.com/keithlinneman/goals-api/internal/health"
	"github.com/keithlinneman/goals-api/internal/httpserver"
	"github.com/keithlinneman/goals-api/internal/log"
	"github.com/keithlinneman/goals-api/internal/metrics"
	"github.com/keithlinneman/goals-api/internal/opshttp"
	"github.com/keithlinneman/goals-api/internal/otelx"
	"github.com/keithlinneman/goals-api/internal/prof"
	v "github.com/keithlinneman/goals-api/internal/version"
	"github.com/keithlinneman/goals-api/internal/webassets"
	"github.com/keithlinneman/goals-api/internal/xerrors"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, conf *cfg.App) error {
	// Fill in config from GOALS_* environment variables, then validate
	cfg.FillFromEnv(cmd.Flags(), cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(*conf); err != nil {
		return xerrors.Wrap(err, "config")
	}

	vi := v.Get()

	// Setup logging
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Env:               string(conf.Mode()),
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		return xerrors.Wrap(err, "logger init")
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", "server")

	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"mode", conf.Mode(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"cors_origins", conf.CORSOrigins,
		"trusted_hops", conf.TrustedHops,
		"rate_limit", conf.RateLimit,
		"rate_window", conf.RateWindow,
		"static_dir", conf.StaticDir,
		"docs_file", conf.DocsFile,
		"watch_docs", conf.WatchDocs,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)

	// Setup pyroscope profiling; failure is logged and the server still starts
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		OnActive:      m.SetProfilingActive,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"env":       string(conf.Mode()),
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Setup otel for tracing
	// Insecure is true because we only export to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// API docs from disk or the embedded document
	docs, err := apidocs.NewStore(apidocs.Options{
		Path:     conf.DocsFile,
		Default:  webassets.OpenAPI(),
		Logger:   L.With("component", "apidocs"),
		OnReload: m.IncDocsReload,
	})
	if err != nil {
		return xerrors.Wrap(err, "load api docs")
	}
	if doc := docs.Current(); doc != nil {
		L.Info(ctx, "loaded api docs", "source", doc.Source, "title", doc.Title, "api_version", doc.Version)
	}
	if conf.WatchDocs {
		go func() {
			if err := docs.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				L.Error(ctx, err, "api docs watcher stopped")
			}
		}()
	}

	limiters := httpserver.NewLimiters(ctx, *conf, m, L)

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	readiness := health.All(
		&gate,
		health.Named("apidocs", health.CheckFunc(func(context.Context) error {
			if docs.Current() == nil {
				return xerrors.New("no document loaded")
			}
			return nil
		})),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Config:   *conf,
		Logger:   L,
		Metrics:  m,
		Limiters: limiters,
		Docs:     docs,
		Info: features.InfoOptions{
			Name:        appName,
			Description: appDescription,
			Build:       vi,
		},
	})
	if err != nil {
		return xerrors.Wrap(err, "start api http listener")
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin/ops listener serves metrics, health checks and pprof
	// requests from public addresses are rejected in middleware in case it is ever exposed
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		return xerrors.Wrap(err, "start ops http listener")
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop routing, then let in-flight requests finish
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "drain_delay", conf.DrainDelay)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}
