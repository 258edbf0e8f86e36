package main

import (
	"context"
	"fmt"
	"os"

	"github.com/punchamoorthee/bankfeed/internal/config"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/punchamoorthee/bankfeed/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rulesFile string
	dbSource  string
	replace   bool
	migrate   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "seeder",
		Short:        "Load category rules from a YAML file into Postgres",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVarP(&rulesFile, "file", "f", "rules.yaml", "YAML file with a top-level rules list")
	rootCmd.Flags().StringVar(&dbSource, "db", "", "Postgres connection string (defaults to DB_SOURCE)")
	rootCmd.Flags().BoolVar(&replace, "replace", false, "Replace existing rules instead of skipping when some exist")
	rootCmd.Flags().BoolVar(&migrate, "migrate", true, "Create the schema before seeding")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if dbSource != "" {
		os.Setenv("DB_SOURCE", dbSource)
	}
	os.Setenv("STORE_DRIVER", config.DriverPostgres)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	rules, err := store.LoadRulesFile(rulesFile)
	if err != nil {
		return err
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pg.Close()

	log.Info("--- Seeding Category Rules ---")
	if migrate {
		if err := pg.Migrate(ctx, cfg.EnforceUniqueKey); err != nil {
			return err
		}
	}

	if replace {
		n, err := pg.ReplaceRules(ctx, rules)
		if err != nil {
			return err
		}
		log.WithField(logging.FieldCount, n).Info("Replaced category rules")
		return nil
	}

	existing, err := pg.FetchRules(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.WithField(logging.FieldCount, len(existing)).Info("Database already has category rules. Skipping.")
		return nil
	}

	n, err := pg.InsertRules(ctx, rules)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		logging.FieldCount: n,
		"file":             rulesFile,
	}).Info("Successfully seeded category rules")
	return nil
}
