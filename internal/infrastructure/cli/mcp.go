package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	inframcp "github.com/felixgeelhaar/farol/internal/infrastructure/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpTransport string
	mcpAddr      string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the Farol MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(true)
		if err != nil {
			return err
		}
		if _, err := svc.dashboard.LoadSaved(cmd.Context()); err != nil {
			svc.logger.Debug("no saved snapshot", "err", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := inframcp.NewServer(svc.dashboard)
		switch strings.ToLower(mcpTransport) {
		case "stdio", "":
			return server.ServeStdio(ctx)
		case "http":
			return server.ServeHTTP(ctx, mcpAddr)
		default:
			return fmt.Errorf("unsupported transport: %s", mcpTransport)
		}
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport to use (stdio, http)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", ":8090", "Address for the http transport")
	RootCmd.AddCommand(mcpCmd)
}
