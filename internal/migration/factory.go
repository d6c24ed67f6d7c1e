package migration

import (
	"fmt"

	"github.com/BaSui01/convoflow/config"
)

// FromArchiveConfig 由归档配置构建迁移器。仅关系型后端支持迁移。
func FromArchiveConfig(cfg config.ArchiveConfig) (Migrator, error) {
	dialect, err := DialectFor(cfg.Backend)
	if err != nil {
		return nil, err
	}
	return NewMigrator(Config{
		Dialect:     dialect,
		DatabaseURL: cfg.DSN,
	})
}

// DialectFor 归档后端到迁移方言的映射
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case "postgres":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("archive backend %q does not support schema migrations", backend)
	}
}
