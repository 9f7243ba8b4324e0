package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	vettermcp "github.com/ppiankov/vetter/internal/mcp"
)

var (
	mcpRemote   bool
	mcpAuditLog string
	mcpNoCache  bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVar(&mcpRemote, "remote", false, "Merge the remote CSV denylist by default")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Audit log path (default ~/.vetter/audit.jsonl, \"off\" disables)")
	mcpCmd.Flags().BoolVar(&mcpNoCache, "no-cache", false, "Disable the profile cache")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs vetter as an MCP (Model Context Protocol) server over stdio.\nExposes tools: vetter_verify, vetter_reference.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := runtimeConfig{UseCache: !mcpNoCache}
	var err error
	if cfg.AuditLogPath, err = dataPath(mcpAuditLog, "audit.jsonl"); err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := vettermcp.New(vettermcp.Config{
		Service: rt.svc,
		Remote:  mcpRemote,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "vetter MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Reference: %s (%s)\n", rt.refPath, rt.holder.Hash())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
