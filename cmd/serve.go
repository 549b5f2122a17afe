package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/kiln/internal/dispatch"
	"github.com/agentic-research/kiln/internal/kv"
)

var serveData string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dataset over HTTP",
	Long: `Serves GET <base>/<namespace>/<slug> from a dataset file (--data) or the
SQLite preview store. SIGHUP reloads the data without dropping requests.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		source := serveData
		if source == "" {
			source = project.Store.Path
		}
		reader, closeReader, err := openReader(source)
		if err != nil {
			return err
		}
		store := kv.NewHotSwap(reader)

		router, err := newRouter(project, store, logger)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := dispatch.NewMetrics(reg)
		if err != nil {
			return err
		}

		d := &dispatch.Dispatcher{
			BasePath: project.Serve.BasePath,
			Router:   router,
			Logger:   logger.Named("dispatch"),
			Metrics:  metrics,
		}
		if project.Serve.Upstream != "" {
			if d.Upstream, err = dispatch.NewUpstream(project.Serve.Upstream, logger.Named("upstream")); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		servers := []*http.Server{{Addr: project.Serve.Addr, Handler: d, ReadHeaderTimeout: 10 * time.Second}}
		if project.Serve.MetricsAddr != "" {
			servers = append(servers, &http.Server{Addr: project.Serve.MetricsAddr, Handler: dispatch.NewMonitor(reg), ReadHeaderTimeout: 10 * time.Second})
		}

		g, ctx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			g.Go(func() error {
				logger.Info("listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen %s: %w", srv.Addr, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			reloadOnHangup(ctx, source, store, &closeReader, logger)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, srv := range servers {
				_ = srv.Shutdown(shutdownCtx)
			}
			return nil
		})

		err = g.Wait()
		_ = closeReader()
		return err
	},
}

// reloadOnHangup swaps in a freshly opened reader on every SIGHUP. The
// previous reader is closed once its in-flight reads finish. A failed
// reload keeps serving the previous data.
func reloadOnHangup(ctx context.Context, source string, store *kv.HotSwap, closeCurrent *func() error, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, closeNext, err := openReader(source)
			if err != nil {
				logger.Error("reload failed", zap.String("source", source), zap.Error(err))
				continue
			}
			_, drained := store.Swap(next)
			closePrev := *closeCurrent
			*closeCurrent = closeNext
			go func() {
				<-drained
				_ = closePrev()
			}()
			logger.Info("data reloaded", zap.String("source", source))
		}
	}
}

func init() {
	serveCmd.Flags().StringVarP(&serveData, "data", "d", "", "Dataset file or .db store to serve (default: preview store)")
	rootCmd.AddCommand(serveCmd)
}
