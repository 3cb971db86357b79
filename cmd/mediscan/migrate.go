package main

import (
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/mediscan/internal/infra/db/migrations"
)

func newMigrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database schema migrations",
	}

	run := func(step func(*migrations.Runner) error) error {
		runner, err := migrations.NewRunner(g.cfg.Database.Driver, g.cfg.MigrateURL(), g.log)
		if err != nil {
			return err
		}
		defer runner.Close()
		return step(runner)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run((*migrations.Runner).Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run((*migrations.Runner).Down)
			},
		},
	)
	return cmd
}
