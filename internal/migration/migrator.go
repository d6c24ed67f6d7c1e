package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// Dialect 迁移目标数据库方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Config 迁移器配置
type Config struct {
	// 目标方言
	Dialect Dialect
	// 连接串，格式随方言而异
	DatabaseURL string
	// 版本表名，默认 schema_migrations
	TableName string
	// 获取迁移锁的超时
	LockTimeout time.Duration
}

// Migrator 版本化 Schema 迁移
type Migrator interface {
	// Up 应用全部待执行迁移
	Up(ctx context.Context) error
	// Down 回滚最近一次迁移
	Down(ctx context.Context) error
	// Version 当前版本与 dirty 标记，尚无版本时返回 (0, false, nil)
	Version(ctx context.Context) (uint, bool, error)
	// Close 释放数据库连接
	Close() error
}

type defaultMigrator struct {
	cfg     Config
	db      *sql.DB
	migrate *migrate.Migrate
}

// NewMigrator 按配置构建迁移器并打开数据库连接
func NewMigrator(cfg Config) (Migrator, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database url is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}

	driverName, err := sqlDriverName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbDriver, err := databaseDriver(cfg.Dialect, db, cfg.TableName)
	if err != nil {
		db.Close()
		return nil, err
	}
	srcFS, srcPath, err := sourceFS(cfg.Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	src, err := iofs.New(srcFS, srcPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(cfg.Dialect), dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = cfg.LockTimeout

	return &defaultMigrator{cfg: cfg, db: db, migrate: m}, nil
}

func sqlDriverName(d Dialect) (string, error) {
	switch d {
	case DialectPostgres:
		return "postgres", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported dialect: %q", d)
	}
}

func databaseDriver(d Dialect, db *sql.DB, table string) (database.Driver, error) {
	switch d {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case DialectSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", d)
	}
}

func sourceFS(d Dialect) (fs.FS, string, error) {
	switch d {
	case DialectPostgres:
		return postgresFS, "migrations/postgres", nil
	case DialectMySQL:
		return mysqlFS, "migrations/mysql", nil
	case DialectSQLite:
		return sqliteFS, "migrations/sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported dialect: %q", d)
	}
}

func (m *defaultMigrator) Up(ctx context.Context) error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (m *defaultMigrator) Down(ctx context.Context) error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

func (m *defaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *defaultMigrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	closeErr := m.db.Close()
	if srcErr != nil {
		return srcErr
	}
	if dbErr != nil {
		return dbErr
	}
	return closeErr
}
