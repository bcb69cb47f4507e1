// Command bloomd runs the Bloom-filter network service: an HTTP and gRPC
// front end over an in-memory, MVCC-versioned directory of named Bloom
// filters, backed by a background reaper that retires old directory
// versions and finalizes deleted filters only after quiescence.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/bloomd/internal/api"
	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
	"github.com/SimonWaldherr/bloomd/internal/bloomlog"
	"github.com/SimonWaldherr/bloomd/internal/config"
	"github.com/SimonWaldherr/bloomd/internal/diag"
	"github.com/SimonWaldherr/bloomd/internal/filterstore"
	"github.com/SimonWaldherr/bloomd/internal/housekeeping"
	"github.com/SimonWaldherr/bloomd/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "bloomd",
	Short:         "bloomd is an in-memory, MVCC-versioned Bloom filter network service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to bloomd.yaml (default: ./bloomd.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bloomd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("bloomd %s (commit %s)\n", version, commit)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration introspection",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg, err := config.FromViper(v)
		if err != nil {
			return err
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(b))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

var (
	flagHTTPAddr string
	flagGRPCAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bloomd daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&flagGRPCAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if flagHTTPAddr != "" {
		cfg.HTTPAddr = flagHTTPAddr
	}
	if flagGRPCAddr != "" {
		cfg.GRPCAddr = flagGRPCAddr
	}

	bloomlog.Configure(bloomlog.Options{File: cfg.LogFile})

	mgr, err := filterstore.NewManager(filterstore.Config{
		DataDir: cfg.DataDir,
		Default: bloomfilter.Config{
			Capacity:    cfg.DefaultFilter.Capacity,
			Probability: cfg.DefaultFilter.Probability,
			InMemory:    cfg.DefaultFilter.InMemory,
		},
	})
	if err != nil {
		return fmt.Errorf("initializing filter manager: %w", err)
	}
	// Deferred first so it runs last, after the reaper has stopped.
	defer mgr.Close()

	recorder, err := diag.NewRecorder(cfg.DiagBufferSize)
	if err != nil {
		return fmt.Errorf("initializing diagnostics recorder: %w", err)
	}

	m := metrics.New("bloomd")

	reaper := filterstore.NewReaper(mgr, cfg.ReaperInterval, cfg.VersionCooldown, func(e filterstore.ReapEvent) {
		recorder.Record(e)
		m.ObserveReap(e.TombstoneExists, e.Destroyed)
	})
	reaper.Start()
	defer reaper.Stop()

	hk, err := housekeeping.New(mgr, housekeeping.Config{
		FlushAllCron:  cfg.FlushAllCron,
		ColdSweepCron: cfg.ColdSweepCron,
	})
	if err != nil {
		return fmt.Errorf("initializing housekeeping scheduler: %w", err)
	}
	hk.Start()
	defer hk.Stop()

	httpSrv := api.NewServer(mgr, cfg.RateLimitPerSecond, m)
	router := httpSrv.Router()
	router.HandleFunc("/debug/reaper-events", debugReaperEventsHandler(recorder))
	router.Handle(cfg.MetricsPath, m.Handler())

	httpListener := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	api.RegisterJSONCodec()
	grpcServer := grpc.NewServer()
	api.RegisterFilterServer(grpcServer, api.NewGRPCService(mgr))

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("bloomd: HTTP listening on %s", cfg.HTTPAddr)
		if err := httpListener.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP serve: %w", err)
		}
	}()
	go func() {
		log.Printf("bloomd: gRPC listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("gRPC serve: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Printf("bloomd: shutdown signal received")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = httpListener.Shutdown(ctx)
	grpcServer.GracefulStop()
	return nil
}

func debugReaperEventsHandler(recorder *diag.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events := recorder.Recent()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
