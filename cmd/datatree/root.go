package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"datatree/internal/config"
	"datatree/internal/core"
	"datatree/internal/logging"
	"datatree/internal/observability"
	"datatree/internal/sources"
)

const (
	colorModeNever  = "never"
	colorModeAlways = "always"
)

type rootOpts struct {
	cfgFile     string
	debug       bool
	colorMode   string
	metricsAddr string
	dialect     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "datatree",
		Short:         "Browse and query hierarchical statistical data sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (YAML); DATATREE_* variables override it")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "turn on debug logging")
	flags.StringVar(&opts.colorMode, "color", colorModeAlways, fmt.Sprintf("log color mode, one of %v", []string{colorModeNever, colorModeAlways}))
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	flags.StringVar(&opts.dialect, "dialect", "", "dialect datasets without one inherit")

	root.AddCommand(
		newLsCmd(opts),
		newTreeCmd(opts),
		newDimsCmd(opts),
		newFetchCmd(opts),
		newImportCmd(opts),
		newPublishCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// session is everything one command invocation holds open.
type session struct {
	cfg    config.Config
	logger *logrus.Logger
	cursor *core.Cursor

	closers []io.Closer
}

// settings loads the configuration and the logger without opening a source.
func (o *rootOpts) settings(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(viper.New(), o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.dialect != "" {
		cfg.Dialect = o.dialect
	}
	if o.colorMode != colorModeNever && o.colorMode != colorModeAlways {
		return nil, fmt.Errorf("unknown color mode %q", o.colorMode)
	}
	level := cfg.Log.Level
	if o.debug {
		level = "debug"
	}
	logger, logCloser, err := logging.New(logging.Options{
		Level:        level,
		Format:       cfg.Log.Format,
		DisableColor: o.colorMode == colorModeNever || !cfg.Log.Color,
		HideCaller:   !o.debug,
		File:         cfg.Log.File,
		Output:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}, nil
}

// open loads the settings and a cursor over the configured source.
func (o *rootOpts) open(cmd *cobra.Command) (*session, error) {
	s, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	reg := prometheus.NewRegistry()
	if s.cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(s.cfg.Metrics.Addr, reg, s.logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, srv)
	}
	src, closer, err := sources.Open(ctx, s.cfg.Source, s.logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.closers = append(s.closers, closer)
	s.cursor, err = core.New(src,
		core.WithLogger(s.logger),
		core.WithMetrics(observability.NewPrometheusRecorder(reg)),
		core.WithDialect(s.cfg.Dialect),
	)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases everything in reverse order of acquisition.
func (s *session) Close() error {
	var result *multierror.Error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result.ErrorOrNil()
}

type metricsServer struct {
	srv *http.Server
}

func serveMetrics(addr string, g prometheus.Gatherer, logger logrus.FieldLogger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(g))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server stopped")
		}
	}()
	logger.WithField("addr", ln.Addr().String()).Info("serving metrics")
	return &metricsServer{srv: srv}, nil
}

func (m *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}

// navigate moves the cursor along a slash-separated id path from the top.
func navigate(ctx context.Context, c *core.Cursor, path string) error {
	if err := c.MoveToTop(); err != nil {
		return err
	}
	for _, id := range strings.Split(path, "/") {
		if id == "" {
			continue
		}
		if err := c.MoveTo(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func currentDataset(c *core.Cursor) (*core.Dataset, error) {
	ds, ok := c.Current().(*core.Dataset)
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.Current().ID(), core.ErrNotDataset)
	}
	return ds, nil
}
