// Command pagecached runs the allocator as a standalone TCP cache
// server: it loads a configuration, builds an Allocator over a fixed
// page store, and serves the line protocol defined in
// pkg/transport until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagecache/pagecache/pkg/allocator"
	"github.com/pagecache/pagecache/pkg/common/log"
	"github.com/pagecache/pagecache/pkg/config"
	"github.com/pagecache/pagecache/pkg/eviction"
	"github.com/pagecache/pagecache/pkg/telemetry"
	"github.com/pagecache/pagecache/pkg/transport"
)

func main() {
	cfg, telCfg, logLevel := parseFlags()

	logger := log.New(log.WithLevel(logLevel)).WithField("component", "pagecached")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	tel, err := telemetry.New(telCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start telemetry: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(ctx)
	}()

	if p, ok := tel.(*telemetry.TelemetryProvider); ok {
		if handler := p.PrometheusHandler(); handler != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			addr := fmt.Sprintf(":%d", telCfg.PrometheusPort)
			go func() {
				if err := http.ListenAndServe(addr, mux); err != nil {
					logger.Error("prometheus exposition server stopped: %v", err)
				}
			}()
			logger.Info("serving prometheus metrics on %s/metrics", addr)
		}
	}

	alloc := allocator.New(cfg, logger, tel)

	srv := transport.NewServer(cfg.ListenAddr, cfg.WorkerCount, cfg.WorkerCount*4, logger)
	srv.SetRequestHandler(alloc)
	srv.SetTelemetry(tel)

	logger.Info("pagecached starting on %s: %d pages of %d bytes, policy=%s, strategy=%s",
		cfg.ListenAddr, cfg.NumPages, cfg.PageSize, cfg.Policy, cfg.AllocationStrategy)

	setupGracefulShutdown(srv, logger)

	// Serve binds the listener and blocks until Stop is called.
	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags builds a config.Config and telemetry.Config from command
// line flags, optionally overlaying a JSON config file written by a
// previous run (config.SaveFile/LoadFile).
func parseFlags() (*config.Config, telemetry.Config, log.Level) {
	var (
		configFile   = flag.String("config", "", "path to a JSON config file (written by -save-config)")
		saveConfig   = flag.String("save-config", "", "write the resolved configuration to this path and exit")
		pageSize     = flag.Int("page-size", 0, "bytes per page (default from config or 40960)")
		numPages     = flag.Int("num-pages", 0, "number of pages in the store (default from config or 2560)")
		policy       = flag.String("policy", "", "eviction policy: lru, fifo, sieve, clock")
		strategy     = flag.String("strategy", "", "allocation strategy: best_fit, first_fit")
		workerCount  = flag.Int("workers", 0, "worker pool size")
		listenAddr   = flag.String("listen", "", "TCP listen address")
		logLevelName = flag.String("log-level", "info", "log level: debug, info, warn, error")
		telemetryOn  = flag.Bool("telemetry", false, "enable OpenTelemetry metrics and tracing")
		exporters    = flag.String("telemetry-exporters", "stdout", "comma-separated exporters: stdout, prometheus")
		promPort     = flag.Int("prometheus-port", 9090, "port to serve Prometheus metrics on")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "pagecached - a networked page-granular cache server\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pagecached [options]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	var cfg *config.Config
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configFile, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.NewDefaultConfig()
	}

	cfg.Update(func(c *config.Config) {
		if *pageSize > 0 {
			c.PageSize = *pageSize
		}
		if *numPages > 0 {
			c.NumPages = *numPages
		}
		if *policy != "" {
			c.Policy = eviction.Kind(*policy)
		}
		if *strategy != "" {
			c.AllocationStrategy = *strategy
		}
		if *workerCount > 0 {
			c.WorkerCount = *workerCount
		}
		if *listenAddr != "" {
			c.ListenAddr = *listenAddr
		}
	})

	if *saveConfig != "" {
		if err := cfg.SaveFile(*saveConfig); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save config to %s: %v\n", *saveConfig, err)
			os.Exit(1)
		}
		fmt.Printf("wrote configuration to %s\n", *saveConfig)
		os.Exit(0)
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.LoadFromEnv()
	telCfg.ServiceName = "pagecached"
	telCfg.Enabled = *telemetryOn
	if *exporters != "" {
		telCfg.Exporters = splitCSV(*exporters)
	}
	if *promPort > 0 {
		telCfg.PrometheusPort = *promPort
	}

	level, ok := log.ParseLevel(*logLevelName)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown log level %q, defaulting to info\n", *logLevelName)
	}

	return cfg, telCfg, level
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// setupGracefulShutdown stops srv on SIGINT/SIGTERM, giving in-flight
// operations 5 seconds to finish before returning anyway.
func setupGracefulShutdown(srv *transport.Server, logger log.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			logger.Error("error shutting down server: %v", err)
		}
		logger.Info("shutdown complete")
	}()
}
