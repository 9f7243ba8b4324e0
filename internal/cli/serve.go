package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/dashboard"
	"github.com/ppiankov/vetter/internal/ratelimit"
)

var (
	serveAddr      string
	serveRemote    bool
	serveAuditLog  string
	serveHistoryDB string
	serveNoCache   bool
	serveNoReload  bool
	serveRateLimit int
	serveRateWin   time.Duration
	serveProxies   []string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveRemote, "remote", false, "Merge the remote CSV denylist by default")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Audit log path (default ~/.vetter/audit.jsonl, \"off\" disables)")
	serveCmd.Flags().StringVar(&serveHistoryDB, "history-db", "", "History database path (default ~/.vetter/history.db, \"off\" disables)")
	serveCmd.Flags().BoolVar(&serveNoCache, "no-cache", false, "Disable the profile cache")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Do not watch the reference file for changes")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", 30, "Verifications allowed per client IP per window (0 disables)")
	serveCmd.Flags().DurationVar(&serveRateWin, "rate-window", time.Minute, "Window for --rate-limit")
	serveCmd.Flags().StringSliceVar(&serveProxies, "trusted-proxy", nil, "Reverse proxy IP or CIDR whose X-Forwarded-For is trusted (repeatable)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: "Serves the verification form, a JSON API and Prometheus metrics over HTTP.\n" +
		"The reference file is hot-reloaded; a broken edit keeps the previous data.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	proxies, err := dashboard.ParseTrustedProxies(serveProxies)
	if err != nil {
		return err
	}
	cfg := runtimeConfig{UseCache: !serveNoCache}
	if cfg.AuditLogPath, err = dataPath(serveAuditLog, "audit.jsonl"); err != nil {
		return err
	}
	if cfg.HistoryPath, err = dataPath(serveHistoryDB, "history.db"); err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	dcfg := dashboard.Config{
		Addr:     serveAddr,
		Service:  rt.svc,
		Gatherer: rt.registry,
		Logger:   rt.logger,
		Remote:   serveRemote,
		VerifyLimit: ratelimit.Limit{
			MaxRequests: serveRateLimit,
			Window:      serveRateWin,
		},
		TrustedProxies: proxies,
	}
	if rt.history != nil {
		dcfg.History = rt.history
	}
	srv, err := dashboard.New(dcfg)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !serveNoReload {
		reloader, err := dashboard.NewReloader(rt.refPath, rt.holder, rt.logger, rt.metrics)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	fmt.Fprintf(os.Stderr, "vetter dashboard listening on http://%s\n", serveAddr)
	fmt.Fprintf(os.Stderr, "Reference: %s (%s)\n", rt.refPath, rt.holder.Hash())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
