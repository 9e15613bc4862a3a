package main

import (
	"github.com/danmuck/glapctl/internal/config"
	"github.com/danmuck/glapctl/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		path       string
		addr       string
		streamAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo game server",
		Long: `Serve the demo world over WebSocket at /ws, with /health, /ready,
/metrics and /sessions alongside. With --stream-addr the same protocol is
also accepted over length-framed TCP. Set GLAP_ADMIN_TOKEN (or admin_token)
to require a bearer token on /sessions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfig()
			if path != "" {
				loaded, err := config.LoadServerConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			config.ApplyServerEnv(&cfg)
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("stream-addr") {
				cfg.StreamAddr = streamAddr
			}
			if err := config.ValidateServerConfig(cfg); err != nil {
				return err
			}
			return server.New(cfg).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "server config file (toml)")
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address")
	cmd.Flags().StringVar(&streamAddr, "stream-addr", "", "tcp listen address for framed streams")
	return cmd
}
