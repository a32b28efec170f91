package migrate

import (
	"database/sql"

	"scout-api/internal/logger"
)

// 背景：首次运行自动创建所需表与索引，保障城市目录导入与结果缓存落盘
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _scout_cities (
            name TEXT NOT NULL,
            country TEXT NOT NULL,
            lat DOUBLE PRECISION NOT NULL,
            lng DOUBLE PRECISION NOT NULL,
            population BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (name, country)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_scout_cities_population ON _scout_cities(population DESC)`,
		`CREATE TABLE IF NOT EXISTS _scout_category_results (
            cache_key TEXT PRIMARY KEY,
            category TEXT NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_scout_cat_created ON _scout_category_results(created_at)`,
		`CREATE TABLE IF NOT EXISTS _scout_overall_results (
            cache_key TEXT PRIMARY KEY,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_scout_all_created ON _scout_overall_results(created_at)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
