package migrate

import (
	"context"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	registrymigrate "github.com/TruongKhoiNguyen/Agora-api/internal/registry/migrate"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	// Store plugins register their migrators in init().
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/mongo"
	_ "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/postgres"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("AGORA_DB_URL", "MONGODB_URI"),
				Usage:    "Database connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("AGORA_DB_KIND"),
				Usage:   "Store backend (mongo|postgres)",
				Value:   "mongo",
			},
			&cli.StringFlag{
				Name:    "directory-kind",
				Sources: cli.EnvVars("AGORA_DIRECTORY_KIND"),
				Usage:   "Profile directory backend (mongo|postgres|static)",
				Value:   "static",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.DirectoryType = cmd.String("directory-kind")
			cfg.DatastoreMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "db", cfg.DatastoreType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
