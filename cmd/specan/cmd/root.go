package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiabin827/gospecan"
	"github.com/xiabin827/gospecan/config"
	"github.com/xiabin827/gospecan/hislip"
	"github.com/xiabin827/gospecan/trace"
)

var (
	cfgFile   string
	addr      string
	timeout   time.Duration
	tracePath string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "specan",
	Short: "SCPI console for spectrum analyzers over HiSLIP",
	Long: `specan talks to a spectrum analyzer over HiSLIP and decodes its
tabular measurement replies using the measurement catalog.

Every exchange is followed by a SYST:ERR? status check unless disabled
in the configuration, and can be recorded to a CBOR trace file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $GOSPECAN_CONFIG or ./gospecan.toml)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "instrument address host[:port]")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "operation timeout (overrides config)")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "append a CBOR exchange trace to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if addr != "" {
		cfg.Instrument.Address = addr
	}
	if timeout > 0 {
		cfg.Instrument.Timeout.Duration = timeout
	}
	if tracePath != "" {
		cfg.Trace.Path = tracePath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func loadCatalog(cfg *config.Config) (*gospecan.Catalog, error) {
	if cfg.Driver.Catalog == "" {
		return gospecan.DefaultCatalog(), nil
	}
	return gospecan.LoadCatalogFile(cfg.Driver.Catalog)
}

// session bundles a connected client with its driver and trace sinks.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *hislip.Client
	driver  *gospecan.Driver
	closers []io.Closer
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	if cfg.Instrument.Address == "" {
		return nil, errors.New("no instrument address (use --addr or [instrument] address)")
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	s := &session{cfg: cfg, logger: logger}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	hcfg := &hislip.Config{
		SubAddress: cfg.Instrument.SubAddress,
		Timeout:    cfg.Instrument.Timeout.Duration,
		Logger:     logger,
	}
	if cfg.Instrument.TLS {
		serverName := ""
		if !cfg.Instrument.InsecureSkipVerify {
			serverName = hostOf(cfg.Instrument.Address)
		}
		hcfg.TLSConfig = hislip.NewTLSConfig(serverName)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Instrument.Timeout.Duration)
	defer cancel()
	s.client, err = hislip.Dial(dialCtx, cfg.Instrument.Address, hcfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Instrument.Address, err)
	}
	s.closers = append(s.closers, s.client)

	var tracers []trace.Tracer
	if cfg.Trace.Path != "" {
		ft, err := trace.NewFileTracer(cfg.Trace.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open trace: %w", err)
		}
		tracers = append(tracers, ft)
		s.closers = append(s.closers, ft)
	}
	if cfg.Trace.Console {
		tracers = append(tracers, trace.NewSlogTracer(logger))
	}

	s.driver, err = gospecan.New(s.client,
		gospecan.WithLogger(logger),
		gospecan.WithCatalog(catalog),
		gospecan.WithTracer(trace.NewMultiTracer(tracers...)),
		gospecan.WithStatusCheck(!cfg.Driver.SkipStatusCheck),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the client and the trace file.
func (s *session) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func hostOf(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

// withSession loads config, connects and runs fn.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	s, err := openSession(cmd.Context(), cfg)
	if err != nil {
		printError("connect", err)
		return err
	}
	defer s.Close()
	return fn(s)
}
