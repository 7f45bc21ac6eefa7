package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/intabcloud/sdg-bridge/internal/bridge"
	"github.com/intabcloud/sdg-bridge/internal/bus"
	"github.com/intabcloud/sdg-bridge/internal/httpx"
	"github.com/intabcloud/sdg-bridge/internal/metrics"
	"github.com/intabcloud/sdg-bridge/internal/platform"
	"github.com/intabcloud/sdg-bridge/internal/upstream"

	_ "net/http/pprof"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultMetricsAddr = ":8080"
	defaultServiceName = "sdg-bridge"

	httpTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.LogLevel, cfg.Verbose).With("service", cfg.ServiceName)

	// Start pprof server
	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	// Start prometheus metrics server
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{Timeout: httpTimeout}

	sdgTokens := httpx.NewTokenProvider(httpx.TokenConfig{
		UserKey:  cfg.SDGUserKey,
		Username: cfg.SDGUsername,
		Password: cfg.SDGPassword,
		LoginURL: cfg.SDGBaseURL,
	}, httpClient, nil, log.With("api", "sdg"))

	intabTokens := httpx.NewTokenProvider(httpx.TokenConfig{
		UserKey:  cfg.IntabUserKey,
		Username: cfg.IntabUsername,
		Password: cfg.IntabPassword,
		LoginURL: cfg.IntabBaseURL,
	}, httpClient, nil, log.With("api", "intab"))

	// Each API gets its own token bucket; the quotas are independent.
	sdgTransport := httpx.NewTransport(httpClient, sdgTokens, httpx.NewRateLimiter(httpx.RateLimiterConfig{}), log.With("api", "sdg"))
	intabTransport := httpx.NewTransport(httpClient, intabTokens, httpx.NewRateLimiter(httpx.RateLimiterConfig{}), log.With("api", "intab"))

	sdg := upstream.NewClient(cfg.SDGBaseURL, sdgTransport, nil, log)
	intab := platform.NewClient(cfg.IntabBaseURL, intabTransport, log)

	publisher, err := bus.Connect(bus.PublisherConfig{
		URL:        cfg.NATSURL(),
		Username:   cfg.NATSUsername,
		Password:   cfg.NATSPassword,
		StreamName: cfg.NATSStreamName,
		Subject:    cfg.NATSSubject,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	defer publisher.Close()

	b, err := bridge.New(&bridge.Config{
		Logger:   log,
		Upstream: sdg,
		Platform: intab,
		Bus:      publisher,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	if err := b.Startup(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	if err := b.Run(ctx); err != nil {
		return err
	}
	log.Info("context cancelled, bridge stopped")
	return nil
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string

	ServiceName string
	LogLevel    string

	SDGUsername string
	SDGPassword string
	SDGBaseURL  string
	SDGUserKey  string

	IntabUsername string
	IntabPassword string
	IntabBaseURL  string
	IntabUserKey  string

	NATSUsername   string
	NATSPassword   string
	NATSServer     string
	NATSPort       string
	NATSStreamName string
	NATSSubject    string
}

func (c *Config) NATSURL() string {
	return fmt.Sprintf("nats://%s:%s", c.NATSServer, c.NATSPort)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (Config, error) {
	// A local .env overrides nothing already exported; missing is fine.
	_ = godotenv.Load()

	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	cfg.ServiceName = getenv("SERVICE_NAME", defaultServiceName)
	cfg.LogLevel = getenv("LOG_LEVEL", "INFO")

	cfg.SDGUsername = getenv("SDG_API_USERNAME", "")
	cfg.SDGPassword = getenv("SDG_API_PASSWORD", "")
	cfg.SDGBaseURL = getenv("SDG_API_BASE_URL", "")
	cfg.SDGUserKey = getenv("SDG_API_USERNAME_KEY", "username")

	cfg.IntabUsername = getenv("INTAB_API_USERNAME", "")
	cfg.IntabPassword = getenv("INTAB_API_PASSWORD", "")
	cfg.IntabBaseURL = getenv("INTAB_API_BASE_URL", "")
	cfg.IntabUserKey = getenv("INTAB_API_USERNAME_KEY", "username")

	cfg.NATSUsername = getenv("NATS_USERNAME", "")
	cfg.NATSPassword = getenv("NATS_PASSWORD", "")
	cfg.NATSServer = getenv("NATS_SERVER1", "localhost")
	cfg.NATSPort = getenv("NATS_PORT", "4222")
	cfg.NATSStreamName = getenv("NATS_STREAM_NAME", "telemetry")
	cfg.NATSSubject = getenv("NATS_SUBJECT", "telemetry.v1")

	if cfg.SDGBaseURL == "" {
		return Config{}, fmt.Errorf("sdg api base url is empty (set SDG_API_BASE_URL)")
	}
	if cfg.IntabBaseURL == "" {
		return Config{}, fmt.Errorf("intab api base url is empty (set INTAB_API_BASE_URL)")
	}

	return cfg, nil
}

func newLogger(level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN", "WARNING":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
