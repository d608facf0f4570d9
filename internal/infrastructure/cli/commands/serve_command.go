package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/doeshing/oncomn/internal/app"
)

// NewServeCommand creates the serve command
func NewServeCommand(container *app.Container) *cobra.Command {
	var (
		addr  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.WebServer == nil {
				return errors.New(ErrWebServerUnavailable)
			}

			cfg, err := container.ConfigProvider.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			if debug {
				// The development UI runs on its own port.
				container.WebServer.SetAllowedOrigins(append(cfg.Server.AllowedOrigins, "*"))
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
			return container.WebServer.Serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Run gin in debug mode and accept websocket clients from any origin")
	return cmd
}
