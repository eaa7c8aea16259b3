package main

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the journal and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		version, err := shared.SchemaVersion(db)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Rolled back %s to schema version %d\n", r.config.Database.Path, version)
	}

	r.logger.Info("running database migrations")
	applied, err := shared.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (schema version %d, %d migrations applied)\n", r.config.Database.Path, version, applied)
}

// SetupConfig writes a config file from the embedded template, or prints the effective configuration.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("print") {
		redacted := *r.config
		if redacted.Source.APIKey != "" {
			redacted.Source.APIKey = "********"
		}
		if redacted.Destination.Password != "" {
			redacted.Destination.Password = "********"
		}
		return toml.NewEncoder(r.output).Encode(redacted)
	}

	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set source.api_key and source.channel_id (or YOUTUBE_API_KEY, YOUTUBE_CHANNEL_ID)\n")
	r.writePlain("2. Set the destination instance, username, password and channel_id (or PEERTUBE_*)\n")
	r.writePlain("3. Run 'yt2pt setup database', then 'yt2pt run --limit 10'\n")
	return nil
}
