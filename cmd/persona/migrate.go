package main

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/persona/internal/observability/logger"
	"github.com/dropDatabas3/persona/internal/store/pg"
	migrations "github.com/dropDatabas3/persona/migrations/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate [up|down] [steps]",
		Short: "Aplica las migraciones del schema de identidad",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			steps := 0
			if len(args) >= 1 && args[0] != "" {
				action = strings.ToLower(args[0])
			}
			if len(args) >= 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 0 {
					return fmt.Errorf("steps inválido: %q", args[1])
				}
				steps = n
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
				return fmt.Errorf("migrate requiere storage.driver=postgres y storage.dsn")
			}

			var (
				fsys fs.FS = migrations.FS
				root       = migrations.Dir
			)
			if dir != "" {
				fsys, root = os.DirFS(dir), "."
			}

			ctx := logger.ToContext(cmd.Context(), logger.Named("migrate").With(logger.Layer("cmd")))
			store, err := pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{MaxConns: 1})
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer store.Close()

			applied, err := store.Migrate(ctx, fsys, root, action, steps)
			if err != nil {
				return err
			}
			logger.SFrom(ctx).Infof("%s: %d migration(s) applied", action, len(applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directorio con *_up.sql / *_down.sql (default: migraciones embebidas)")
	return cmd
}
