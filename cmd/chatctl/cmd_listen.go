package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chatterline/realtime-go/internal/transport"
	"github.com/chatterline/realtime-go/pkg/tracing"
)

func init() {
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect and stream chat events and notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, cfg, err := newClient()
		if err != nil {
			return err
		}
		defer cl.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.TracingEnabled {
			tp, err := tracing.InitTracer(ctx, "chatctl", cfg.TracingEndpoint)
			if err != nil {
				fmt.Fprintf(os.Stderr, "tracing disabled: %v\n", err)
			} else {
				defer tracing.Shutdown(context.Background(), tp)
			}
		}

		if err := cl.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		if err := cl.SyncChats(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "chat list sync failed: %v\n", err)
		}

		fmt.Println("Listening. Press Ctrl-C to stop.")

		g, ctx := errgroup.WithContext(ctx)

		if cfg.DebugAddr != "" {
			g.Go(func() error { return serveDebug(ctx, cfg.DebugAddr, cl.Transport) })
		}
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// serveDebug exposes /healthz and /metrics until ctx is done.
func serveDebug(ctx context.Context, addr string, tr *transport.Client) error {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if tr.IsConnected() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, string(tr.Status()))
	})
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
