package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"fiberops/config"
	"fiberops/core/utils"
)

// NewDB opens the configured database. sqlite (modernc) is the default;
// postgres is served through the pgx stdlib driver.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(cfg.DBURL)
		if path == "" {
			path = "data/fiberops.db"
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if logger != nil {
			logger.Printf("db open sqlite path=%s", path)
		}
		return db, nil
	case "postgres", "pgx":
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Printf("db open postgres")
		}
		return db, nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
}
