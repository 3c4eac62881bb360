package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/gpkg-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload/convert/download HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		srv, err := newServer()
		if err != nil {
			return err
		}
		return srv.ListenAndServe(ctx, cfg.Server.Port)
	},
}

func newServer() (*server.Server, error) {
	return server.New(server.Options{
		WorkDir:           cfg.Convert.WorkDir,
		Charset:           cfg.Convert.Charset,
		SRID:              cfg.Convert.SRSID,
		Workers:           cfg.Convert.Workers,
		DateNameMarker:    cfg.Convert.DateNameMarker,
		PathPrefix:        cfg.Server.PathPrefix,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		CacheTTL:          cfg.Server.CacheTTL(),
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
