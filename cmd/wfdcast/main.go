package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/wfdcast/internal/certs"
	"github.com/zsiec/wfdcast/internal/config"
	"github.com/zsiec/wfdcast/internal/executor"
	"github.com/zsiec/wfdcast/internal/report"
	"github.com/zsiec/wfdcast/internal/session"
	"github.com/zsiec/wfdcast/internal/source"
)

var version = "dev"

func main() {
	cfg, err := config.Load()

	level := slog.LevelInfo
	if cfg != nil && cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("wfdcast failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sink, err := report.New(cfg.ReportKind, slog.Default())
	if err != nil {
		return err
	}
	stats := report.NewStatistics()
	defer stats.Dump(slog.Default())

	src, err := source.Open(cfg.Input,
		source.SourceOptReport(sink),
		source.SourceOptFramerate(cfg.Framerate),
		source.SourceOptLoop(cfg.Loop),
	)
	if err != nil {
		return err
	}

	var fingerprint [32]byte
	if cfg.QUICFingerprint != "" {
		if fingerprint, err = certs.ParseFingerprint(cfg.QUICFingerprint); err != nil {
			return fmt.Errorf("WFD_QUIC_FINGERPRINT: %w", err)
		}
	}

	encoder := cfg.EncoderConfig()
	slog.Info("wfdcast starting",
		"version", version,
		"input", cfg.Input,
		"access_units", src.AccessUnits(),
		"transport", cfg.Transport,
		"sinks", len(cfg.Sinks),
		"format", cfg.Format.String(),
		"framerate", encoder.Framerate,
		"report", cfg.ReportKind,
	)

	a := &app{
		mgr: session.NewManager(nil),
		src: src,
		opts: session.Options{
			Transport:       cfg.Transport,
			SRTName:         cfg.SRTName,
			QUICFingerprint: fingerprint,
			MaxUnitSize:     cfg.MaxUnitSize,
			QueueSize:       cfg.QueueSize,
			PSIInterval:     cfg.PSIInterval,
			Encoder:         encoder,
			Report:          sink,
			Stats:           stats,
		},
	}
	defer a.mgr.CloseAll()

	for _, s := range cfg.Sinks {
		if err := a.connect(ctx, s); err != nil {
			slog.Error("sink unavailable", "sink", s.String(), "error", err)
		}
	}
	if a.mgr.Len() == 0 {
		return errors.New("no sink could be reached")
	}

	if cfg.StatsInterval > 0 {
		dumper := executor.NewThreaded(&statsDumper{stats: stats, every: cfg.StatsInterval}, nil)
		dumper.Start()
		defer dumper.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: a.handler(sink)}
		g.Go(func() error {
			slog.Info("status server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	sessionsCtx, stopSessions := context.WithCancel(ctx)
	defer stopSessions()
	for _, s := range a.mgr.List() {
		g.Go(func() error {
			a.runSession(sessionsCtx, s)
			return nil
		})
	}

	g.Go(func() error {
		defer stopSessions()
		if err := src.Run(ctx); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if ctx.Err() == nil {
			a.drain(ctx, 2*time.Second)
		}
		return errSourceDone
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errSourceDone) {
		return err
	}
	slog.Info("wfdcast stopped", "source", src.Stats())
	return nil
}

// errSourceDone ends the run group once the input is exhausted.
var errSourceDone = errors.New("source finished")

type app struct {
	mgr  *session.Manager
	src  *source.Source
	opts session.Options
}

func (a *app) connect(ctx context.Context, sink config.Sink) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	s, err := session.Dial(dialCtx, sink.Host, sink.Port, a.opts)
	if err != nil {
		return err
	}
	if !a.mgr.Add(s) {
		s.Close()
		return fmt.Errorf("duplicate sink %s", sink)
	}
	a.src.AddSink(s.Media())
	return nil
}

func (a *app) runSession(ctx context.Context, s *session.Session) {
	defer a.mgr.Remove(s.Key)
	defer a.src.RemoveSink(s.Media())

	if err := s.Run(ctx); err != nil {
		slog.Warn("session failed", "key", s.Key, "error", err)
	}
}

// drain waits for queued media to leave every session.
func (a *app) drain(ctx context.Context, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		pending := 0
		for _, s := range a.mgr.List() {
			info := s.Info()
			pending += info.PendingAUs + info.PendingRTP
		}
		if pending == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			slog.Warn("dropping undelivered media", "pending", pending)
			return
		case <-tick.C:
		}
	}
}

func (a *app) handler(sink report.Sink) http.Handler {
	mux := http.NewServeMux()
	if m, ok := sink.(*report.Metrics); ok {
		mux.Handle("GET /metrics", m.Handler())
	}
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions := a.mgr.List()
		infos := make([]session.Info, len(sessions))
		for i, s := range sessions {
			infos[i] = s.Info()
		}
		writeJSON(w, infos)
	})
	mux.HandleFunc("GET /source", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, a.src.Stats())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

// statsDumper logs the timing statistics periodically.
type statsDumper struct {
	stats *report.Statistics
	every time.Duration
}

func (d *statsDumper) Name() string { return "stats-dumper" }

func (d *statsDumper) Execute(ctx context.Context) bool {
	t := time.NewTimer(d.every)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		d.stats.Dump(slog.Default())
		return true
	}
}
