package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krew-solutions/whizbang-go/coordinator"
	pgsession "github.com/krew-solutions/whizbang-go/session/pg"
)

func newSetupCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the Work Coordinator's tables if they do not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			log := newLogger(cfg.logLevel)

			pool, err := pgxpool.New(cmd.Context(), cfg.dbURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			sessionPool := pgsession.NewSessionPool(pool)
			coord := coordinator.NewCoordinator(sessionPool)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := coord.Setup(ctx); err != nil {
				return err
			}
			log.Info("whizbangd: schema ready")
			return nil
		},
	}
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logrus.NewEntry(logger)
}
