package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"market-data-server/src/logger"
	"market-data-server/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	*sqlStore
	Config *models.MConfig
	Schema string
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	if cfg.Storage.DBConnectionString == "" {
		return nil, fmt.Errorf("postgres connection string is empty")
	}
	schema := SchemaName(cfg.Name)

	return &PostgresDB{
		sqlStore: newSQLStore("postgres", schema, log),
		Config:   cfg,
		Schema:   schema,
	}, nil
}

// -----------------------------------------------------------------------------

// SchemaName derives the postgres schema from the application name
func SchemaName(appName string) string {
	name := strings.ToLower(strings.TrimSpace(appName))
	name = strings.NewReplacer("-", "_", " ", "_", ".", "_", `"`, "").Replace(name)
	if name == "" {
		return "data_server"
	}
	return name
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}
