// -- cmd/serve.go --
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/operant/internal/bridge"
	"github.com/xkilldash9x/operant/internal/observability"
)

// newServeCmd creates the `serve` command, exposing the agent, the page
// tools, and the search driver over the Model Context Protocol.
func newServeCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the agent over the Model Context Protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			b := bridge.NewBridge(loadedConfig(), logger)
			server := bridge.NewServer(b, Version, logger)
			return server.Serve(cmd.Context(), bridge.ServeConfig{
				Transport: transport,
				Port:      port,
			})
		},
	}

	serveCmd.Flags().StringVar(&transport, "transport", bridge.TransportStdio, "MCP transport: stdio or streamable-http")
	serveCmd.Flags().IntVar(&port, "port", 8080, "listen port for the streamable-http transport")
	return serveCmd
}
