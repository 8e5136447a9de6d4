package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/sftpdeck/internal/health"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
)

// shutdownTimeout bounds the graceful stop of the probe server.
const shutdownTimeout = 10 * time.Second

func newServeCmd(o *options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, readiness and metrics endpoints",
		Long: `Serve /health, /ready and /metrics until SIGINT or SIGTERM.

/ready tests every SFTP profile on each request. Profiles with a protocol
that cannot be served are reported as degraded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("port") {
				port = o.cfg.HealthPort
			}
			if port < 0 || port > 65535 {
				return fmt.Errorf("port must be between 0 and 65535, got %d", port)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := o.dispatcher()
			if err != nil {
				return err
			}

			srv := health.New(port,
				health.WithLogger(o.logger),
				health.WithTimeout(o.cfg.SSHTimeout+5*time.Second),
			)
			for _, conn := range o.cfg.Connections {
				name := "connection:" + conn.Name
				if conn.Protocol == connection.ProtocolSFTP {
					srv.RegisterChecker(name, health.ConnectionChecker(d, conn))
				} else {
					srv.RegisterDegradedChecker(name, health.UnsupportedChecker(d, conn))
				}
			}

			if err := srv.Start(); err != nil {
				return err
			}

			o.logger.Info("sftpdeck serving",
				slog.String("version", version),
				slog.String("addr", srv.Addr()),
				slog.Int("connections", len(o.cfg.Connections)),
			)

			<-ctx.Done()
			o.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down health server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")

	return cmd
}
