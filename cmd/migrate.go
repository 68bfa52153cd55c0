package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmehdipour/compliance-gateway/internal/config"
	"github.com/jmehdipour/compliance-gateway/internal/db"
	"github.com/jmehdipour/compliance-gateway/internal/logger"
	"github.com/jmehdipour/compliance-gateway/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	migrateDown       bool
	migrateClickHouse bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply MySQL schema migrations (and the ClickHouse DDL with --clickhouse)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer logger.Sync()

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		if err := migrateMySQL(sqlDB, migrateDown); err != nil {
			return err
		}
		log.Info("mysql migrations applied", zap.Bool("down", migrateDown))

		if !migrateClickHouse {
			return nil
		}
		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		n, err := applyClickHouseDDL(chDB, migrations.ClickHouse)
		if err != nil {
			return err
		}
		log.Info("clickhouse ddl applied", zap.Int("statements", n))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the most recent migration")
	migrateCmd.Flags().BoolVar(&migrateClickHouse, "clickhouse", false, "also create the ClickHouse tables")
}

func migrateMySQL(dbx *sqlx.DB, down bool) error {
	src, err := iofs.New(migrations.MySQL, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	drv, err := migratemysql.WithInstance(dbx.DB, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", drv)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// applyClickHouseDDL runs every statement of every file in name order.
// The native protocol takes one statement per Exec.
func applyClickHouseDDL(ch *sqlx.DB, fsys fs.FS) (int, error) {
	files, err := fs.Glob(fsys, "clickhouse/*.sql")
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	n := 0
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return n, fmt.Errorf("read %s: %w", f, err)
		}
		for _, stmt := range splitStatements(string(b)) {
			if _, err := ch.Exec(stmt); err != nil {
				return n, fmt.Errorf("exec %s: %w", f, err)
			}
			n++
		}
	}
	return n, nil
}

func splitStatements(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
