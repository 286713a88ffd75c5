package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"speedtest-pro/internal/apiclient"
	"speedtest-pro/internal/config"
	"speedtest-pro/internal/console"
	"speedtest-pro/internal/controller"
	"speedtest-pro/internal/errorhandler"
	"speedtest-pro/internal/gauge"
	"speedtest-pro/internal/logging"
	"speedtest-pro/internal/metrics"
	"speedtest-pro/internal/resultmanager"
	"speedtest-pro/internal/server"
	"speedtest-pro/internal/workerpool"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	demo       bool
	serve      string
	rate       int
	runs       int
	export     string
	sortBy     string
	backend    bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to configuration file (.yaml or .toml)")
	flag.BoolVar(&opts.demo, "demo", false, "Run against a built-in simulated backend")
	flag.StringVar(&opts.serve, "serve", "", "Only serve the simulated backend on this address (e.g. :5000)")
	flag.IntVar(&opts.rate, "rate", -1, "Submit this rating (0-10) after the test, -1 for none")
	flag.IntVar(&opts.runs, "runs", 1, "Number of consecutive tests to run")
	flag.StringVar(&opts.export, "export", "", "Print the session history as csv, json or txt")
	flag.StringVar(&opts.sortBy, "sort", resultmanager.SortByTime, "Sort exported history by download, upload, ping or time")
	flag.BoolVar(&opts.backend, "backend-results", false, "Print the backend's server list and stored results after the session")
	flag.Parse()

	cfg, err := config.LoadAndValidate(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Log)
	log.Infof("Configuration loaded from: %s", opts.configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Infof("Received shutdown signal: %v", sig)
		cancel()
	}()

	if opts.serve != "" {
		err = serveSimulator(ctx, cfg, opts.serve)
	} else {
		err = runTests(ctx, cfg, opts)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// defaultConfigPath places config.yaml next to the executable
func defaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(filepath.Dir(exePath), "config.yaml")
}

// serveSimulator runs only the simulated backend until ctx is cancelled
func serveSimulator(ctx context.Context, cfg *config.Config, addr string) error {
	sim := server.New(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- sim.Run(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sim.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop simulator: %w", err)
	}
	log.Info("Simulator stopped")
	return nil
}

// runTests drives the widget in the terminal
func runTests(ctx context.Context, cfg *config.Config, opts options) error {
	if err := validateRate(opts.rate); err != nil {
		return err
	}
	var format resultmanager.ExportFormat
	if opts.export != "" {
		f, err := resultmanager.ParseFormat(opts.export)
		if err != nil {
			return err
		}
		format = f
	}

	baseURL := cfg.Backend.BaseURL
	if opts.demo {
		sim := server.New(cfg)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to start simulator: %w", err)
		}
		go func() {
			if err := sim.Serve(ln); err != nil {
				log.Errorf("Simulator stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = sim.Shutdown(shutdownCtx)
		}()
		baseURL = "http://" + ln.Addr().String()
	}

	client := apiclient.New(baseURL, cfg.RequestTimeout())
	if health, err := client.Health(); err != nil {
		log.Warnf("Backend health check failed: %v", err)
	} else {
		log.Debugf("Backend %s is %s", client.BaseURL(), health.Status)
	}

	pool := workerpool.New(cfg.UI.FeedbackWorkers)
	if err := pool.Start(); err != nil {
		return err
	}
	log.Debugf("Feedback pool started with %d workers", pool.GetWorkerCount())
	defer func() {
		if err := pool.Stop(shutdownTimeout); err != nil {
			log.Warnf("Failed to stop worker pool: %v", err)
		}
	}()

	fmt.Printf("Speedometer scale (Mbps): %s\n", gauge.Scale())
	ctrl := controller.New(client, console.New(os.Stdout, 40), pool, controller.OptionsFromConfig(cfg))
	defer ctrl.Close()

	lastErr := runSession(ctx, ctrl, opts.runs)
	if errors.Is(lastErr, context.Canceled) {
		return nil
	}

	if opts.rate >= 0 {
		if err := ctrl.SetRating(opts.rate); err != nil {
			log.Warnf("Rating not submitted: %v", err)
		}
	}

	if opts.export != "" {
		ascending := opts.sortBy == resultmanager.SortByPing || opts.sortBy == resultmanager.SortByTime
		if err := ctrl.History().Export(os.Stdout, format, opts.sortBy, ascending); err != nil {
			return fmt.Errorf("failed to export history: %w", err)
		}
	}

	if opts.backend {
		printBackendResults(client)
	}

	logSessionSummary(ctrl.Metrics(), ctrl.Errors())

	return lastErr
}

// runSession runs tests back to back, each once the widget is idle again.
// A run after a failed one goes through Retry. It returns the outcome of
// the last run, or context.Canceled when interrupted.
func runSession(ctx context.Context, ctrl *controller.Controller, runs int) error {
	var lastErr error
	for i := 0; i < runs; i++ {
		if err := ctrl.WaitIdle(ctx); err != nil {
			return err
		}
		start := ctrl.StartTest
		if lastErr != nil {
			start = ctrl.Retry
		}
		if !start(ctx) {
			return errors.New("a speed test is already running")
		}
		if _, lastErr = ctrl.Wait(ctx); errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return lastErr
}

// validateRate accepts -1 (no rating) or 0..MaxRating
func validateRate(rate int) error {
	if rate < -1 || rate > controller.MaxRating {
		return fmt.Errorf("-rate must be between 0 and %d, or -1 for none", controller.MaxRating)
	}
	return nil
}

// printBackendResults prints what the backend itself knows about its servers and results
func printBackendResults(client *apiclient.Client) {
	if info, err := client.ServerInfo(); err != nil {
		log.Warnf("Failed to fetch server list: %v", err)
	} else {
		fmt.Printf("Backend servers (%d):\n", info.TotalServers)
		for _, srv := range info.AvailableServers {
			fmt.Printf("  %s | %s, %s | %s\n", srv.Sponsor, srv.Name, srv.Country, srv.Host)
		}
	}

	res, err := client.Results()
	if err != nil {
		log.Warnf("Failed to fetch backend results: %v", err)
		return
	}
	fmt.Printf("Backend history (%d):\n", len(res.History))
	for _, r := range res.History {
		fmt.Printf("  %s  %.2f / %.2f Mbps  %.1f ms  %s\n", r.Timestamp, r.Download, r.Upload, r.Ping, r.Server.Sponsor)
	}
}

func logSessionSummary(m *metrics.Metrics, errs *errorhandler.ErrorHandler) {
	stats := m.GetSessionStats()
	fields := log.Fields{
		"started":           stats.TestsStarted,
		"successful":        stats.TestsSuccessful,
		"failed":            stats.TestsFailed,
		"timed_out":         stats.TestsTimedOut,
		"smoothed_download": fmt.Sprintf("%.2f", m.GetSmoothedDownload()),
	}
	for errType, st := range errs.GetErrorStats() {
		fields[string(errType)+"_errors"] = st.TotalCount
	}
	if latency := m.GetMetric(metrics.MetricPollLatency); latency != nil {
		fields["poll_latency_avg"] = fmt.Sprintf("%.3fs", latency.Value)
		fields["polls"] = latency.Count
	}
	log.WithFields(fields).Info("Session finished")
}
