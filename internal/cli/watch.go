package cli

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/output"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

const (
	defaultWatchInterval = 15 * time.Second
	minWatchInterval     = 10 * time.Millisecond
	metricsReadTimeout   = 5 * time.Second
	metricsShutdown      = 2 * time.Second
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	watchAddress  string
	watchInterval time.Duration
	watchMetrics  string
	watchRefetch  bool
	watchCount    int
)

// watchCmd redraws the flow view on an interval.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep showing subscription status",
	Long: `Show the flow view and redraw it on an interval until interrupted.

Reads are fetched once when the session starts and then served from the
cache; the interval only redraws. Use --refetch-on-tick to read everything
again on every tick.

With --metrics-listen, Prometheus metrics for reads, writes, invalidations
and RPC calls are served at /metrics on the given address.`,
	Example: `  subpass watch
  subpass watch --interval 1m --refetch-on-tick
  subpass watch --metrics-listen 127.0.0.1:9090`,
	RunE: runWatch,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	watchCmd.GroupID = groupFlow
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchAddress, "address", "", "watch this address instead of the key file's")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", defaultWatchInterval, "time between redraws")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics-listen", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().BoolVar(&watchRefetch, "refetch-on-tick", false, "read everything again on every tick")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "stop after this many redraws (0 runs until interrupted)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if watchInterval < minWatchInterval {
		return suberr.WithDetails(suberr.ErrInvalidInput, map[string]string{
			"interval": watchInterval.String(),
			"minimum":  minWatchInterval.String(),
		})
	}

	ctx, stop := interruptible(cmd)
	defer stop()

	listen := watchMetrics
	if listen == "" {
		listen = cc.Cfg.Metrics.Listen
	}
	if listen != "" {
		addr, shutdown, err := serveMetrics(ctx, cc, listen)
		if err != nil {
			return err
		}
		defer shutdown()
		output.Infof(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics", addr)
	}

	f, err := openFlow(ctx, cc, flowOptions{Address: watchAddress})
	if err != nil {
		return err
	}
	defer f.Close()

	opts := f.viewOptions(ctx, cc, true)
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		if !cc.Fmt.IsJSON() {
			_ = cc.Fmt.Printf("\n--- %s ---\n", time.Now().Format(time.TimeOnly))
		}
		if err := output.RenderView(cc.Fmt, f.ctrl.View(), opts); err != nil {
			return err
		}
		if watchCount > 0 && n >= watchCount {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if watchRefetch {
			if err := f.ctrl.Reload(ctx); err != nil {
				cc.Log.Debug("refetch on tick: %v", err)
			}
		}
	}
}

// serveMetrics starts the metrics endpoint and returns the bound address
// and a shutdown func.
func serveMetrics(ctx context.Context, cc *CommandContext, addr string) (net.Addr, func(), error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, suberr.WithDetails(suberr.WithCause(suberr.ErrInvalidInput, err), map[string]string{"listen": addr})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", cc.Metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
		ErrorLog:          log.New(cc.Log.Named("metrics").Writer(config.LogLevelError), "", 0),
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cc.Log.Error("metrics server: %v", err)
		}
	}()
	return ln.Addr(), func() {
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdown)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}, nil
}
