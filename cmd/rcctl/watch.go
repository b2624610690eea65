package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	rocketchat "github.com/NeboLoop/rocketchat-go-sdk"
)

// watchLine is one line of watch output.
type watchLine struct {
	Kind      rocketchat.EventKind `json:"kind"`
	EventName string               `json:"event_name"`
	RoomID    string               `json:"room_id"`
	DeletedID string               `json:"deleted_id,omitempty"`
	Frame     json.RawMessage      `json:"frame"`
}

func newWatchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream new and deleted messages as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			addr := metricsAddr
			if addr == "" {
				addr = cfg.Metrics.Addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			metrics := rocketchat.NewMetrics(reg)

			if addr != "" {
				srv, err := serveMetrics(addr, reg)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					srv.Shutdown(shutdownCtx)
				}()
			}

			client, err := newClient(metrics)
			if err != nil {
				return err
			}
			sub, err := client.Realtime(ctx)
			if err != nil {
				return err
			}
			defer sub.Close()

			return watch(ctx, sub, json.NewEncoder(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func watch(ctx context.Context, sub *rocketchat.Subscription, enc *json.Encoder) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return sub.Err()
			}
			if err := enc.Encode(watchLine{
				Kind:      ev.Kind,
				EventName: ev.EventName,
				RoomID:    ev.RoomID,
				DeletedID: ev.DeletedID,
				Frame:     ev.Raw,
			}); err != nil {
				return err
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
