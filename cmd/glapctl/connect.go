package main

import (
	"context"
	"time"

	"github.com/danmuck/glapctl/internal/client"
	"github.com/danmuck/glapctl/internal/config"
	"github.com/danmuck/glapctl/internal/logging"
	"github.com/danmuck/glapctl/internal/scene"
	"github.com/danmuck/glapctl/internal/sessionstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	var (
		path        string
		url         string
		sessionFile string
		token       string
		every       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a headless client and log the scene it receives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultClientConfig()
			if path != "" {
				loaded, err := config.LoadClientConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("url") {
				cfg.URL = url
			}
			if cmd.Flags().Changed("session-file") {
				cfg.SessionFile = sessionFile
			}
			if err := config.ValidateClientConfig(cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			store := sessionstore.NewFileStore(cfg.SessionFile)
			if cmd.Flags().Changed("session") {
				if err := store.Save(ctx, token); err != nil {
					return err
				}
			}

			logger := logging.New("connect")
			c, err := client.New(client.Config{
				URL:                cfg.URL,
				MaxConnectAttempts: cfg.MaxConnectAttempts,
				Session:            cfg.Session,
				Store:              store,
				Renderer:           logRenderer{logger: logger},
			})
			if err != nil {
				return err
			}
			if every > 0 {
				go reportScene(ctx, c.Scene(), every, logger)
			}
			err = c.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "client config file (toml)")
	cmd.Flags().StringVar(&url, "url", "", "server url (ws://, wss:// or tcp://)")
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "file holding the session token")
	cmd.Flags().StringVar(&token, "session", "", "store this server-issued session token before connecting")
	cmd.Flags().DurationVar(&every, "report", 5*time.Second, "scene summary interval (0 disables)")
	return cmd
}

type logRenderer struct {
	logger zerolog.Logger
}

func (r logRenderer) CelestialObjectAdded(obj scene.CelestialObject) {
	r.logger.Info().
		Uint32("id", obj.ID).
		Str("sprite", obj.SpriteKey).
		Float32("size", obj.Size).
		Float32("x", obj.Position.X).
		Float32("y", obj.Position.Y).
		Msg("celestial object added")
}

func (r logRenderer) PartAdded(part scene.Part) {
	r.logger.Info().Uint32("id", part.ID).Str("sprite", part.SpriteKey).Msg("part added")
}

func (r logRenderer) PartMoved(part scene.Part) {
	r.logger.Trace().
		Uint32("id", part.ID).
		Float32("x", part.Position.X).
		Float32("y", part.Position.Y).
		Float64("rotation", part.Rotation).
		Msg("part moved")
}

func reportScene(ctx context.Context, s *scene.Scene, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot()
			placed := 0
			for _, p := range snap.Parts {
				if p.Placed {
					placed++
				}
			}
			logger.Info().
				Int("celestial_objects", len(snap.CelestialObjects)).
				Int("parts", len(snap.Parts)).
				Int("placed", placed).
				Msg("scene")
		}
	}
}
