package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/mediscan/internal/config"
	"github.com/bryanwahyu/mediscan/internal/logging"
)

type globals struct {
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "mediscan",
		Short:         "Chest X-ray upload and AI analysis service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&g.configPath, "config", config.Path(), "path to config.yaml (CONFIG_PATH)")

	cmd.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newAnalyzeCmd(g),
	)
	return cmd
}

func (g *globals) load() error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.log = log
	return nil
}
