package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kagent-dev/pipohost/internal/collection"
	"github.com/kagent-dev/pipohost/internal/config"
	"github.com/kagent-dev/pipohost/internal/host"
	"github.com/kagent-dev/pipohost/internal/logging"
	"github.com/kagent-dev/pipohost/internal/metrics"
)

func main() {
	var configFile string
	var pluginDir string
	var presetsFile string
	var chainSpec string
	var list bool
	var output string
	var noBuiltins bool
	var metricsAddr string

	flag.StringVar(&configFile, "config", "", "The host will load its configuration from this file.")
	flag.StringVar(&pluginDir, "plugin-dir", "", "Directory scanned for plugin libraries.")
	flag.StringVar(&presetsFile, "presets", "", "ChainPresetList manifest registered as plugins.")
	flag.StringVar(&chainSpec, "chain", "", "Chain specification fed with frames read from stdin, for example \"scale{factor=2}:rms\".")
	flag.BoolVar(&list, "list", false, "List the registered plugins and exit.")
	flag.StringVar(&output, "output", "table", "Output format of -list: table, yaml or json.")
	flag.BoolVar(&noBuiltins, "no-builtins", false, "Do not register the built-in plugins.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", "", "The address the metric endpoint binds to. Empty disables it.")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to load configuration: %v\n", err)
		os.Exit(1)
	}
	if pluginDir != "" {
		cfg.Plugins.Directory = pluginDir
	}
	if presetsFile != "" {
		cfg.Plugins.PresetsFile = presetsFile
	}
	if noBuiltins {
		cfg.Plugins.Builtins = false
	}
	if metricsAddr != "" {
		cfg.Metrics.BindAddress = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	setupLog := logging.NewLogger("setup")

	if err := run(cfg, setupLog, chainSpec, list, output); err != nil {
		setupLog.Error(err, "pipo host failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logr.Logger, chainSpec string, list bool, output string) error {
	m := metrics.New()
	if cfg.Metrics.BindAddress != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		stop, err := serveMetrics(cfg.Metrics.BindAddress, reg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	opts := []collection.Option{
		collection.WithMetrics(m),
		collection.WithPluginDirectory(cfg.Plugins.Directory),
		collection.WithExtension(cfg.Plugins.Extension),
		collection.WithPresetsFile(cfg.Plugins.PresetsFile),
	}
	coll := collection.New(logging.NewLogger("collection"), opts...)
	if err := coll.Init(cfg.Plugins.Builtins); err != nil {
		return fmt.Errorf("failed to initialize plugin collection: %w", err)
	}
	defer func() {
		if err := coll.Deinit(); err != nil {
			log.Error(err, "Errors while tearing down plugin collection")
		}
	}()

	if list {
		return writeCatalog(os.Stdout, output, coll.Catalog())
	}

	if chainSpec == "" {
		return errors.New("nothing to do: pass -chain or -list")
	}

	h := host.New(coll, logging.NewLogger("host"))
	defer func() {
		if err := h.ClearChain(); err != nil {
			log.Error(err, "Failed to close chain")
		}
	}()
	if err := configureInput(h, cfg.Host); err != nil {
		return err
	}
	if _, err := h.SetChain(chainSpec); err != nil {
		return err
	}

	return stream(os.Stdin, os.Stdout, h)
}

func configureInput(h *host.Host, in config.HostConfig) error {
	if err := h.SetInputDims(in.Width, in.Height, false); err != nil {
		return err
	}
	if err := h.SetInputFrameRate(in.Rate, false); err != nil {
		return err
	}
	return h.SetInputMaxFrames(in.MaxFrames, false)
}

// serveMetrics exposes reg on addr until the returned function is called
func serveMetrics(addr string, reg *prometheus.Registry, log logr.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server stopped")
		}
	}()
	log.Info("Serving metrics", "address", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
