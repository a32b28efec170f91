// 包 store: 提供与 PostgreSQL 的数据访问层，包含城市目录读写与评分结果持久缓存
package store

import (
	"context"
	"database/sql"
	"time"

	"scout-api/internal/catalog"
	"scout-api/internal/logger"

	_ "github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池并提供目录/结果缓存接口
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

func AttachDB(db *sql.DB, ttl time.Duration) *Store { return &Store{db: db, ttl: ttl} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db, ttl: ttl}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// UpsertCities: 批量写入城市目录，主键 (name, country) 冲突时覆盖坐标与人口
func (s *Store) UpsertCities(ctx context.Context, cities []catalog.City) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _scout_cities(name, country, lat, lng, population)
        VALUES($1,$2,$3,$4,$5)
        ON CONFLICT (name, country) DO UPDATE SET lat=EXCLUDED.lat, lng=EXCLUDED.lng, population=EXCLUDED.population`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, c := range cities {
		if _, err := stmt.ExecContext(ctx, c.Name, c.Country, c.Lat, c.Lng, c.Population); err != nil {
			return n, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	logger.L().Info("cities_upserted", "count", n)
	return n, nil
}

// CountCities: 目录当前行数
func (s *Store) CountCities(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM _scout_cities`).Scan(&n)
	return n, err
}

// GetCategoryResult: 读取类别结果缓存
// 过期行懒删除：命中但超过 TTL 时当场删除并按未命中处理
func (s *Store) GetCategoryResult(ctx context.Context, key string) ([]byte, bool) {
	return s.getResult(ctx, "_scout_category_results", key)
}

// PutCategoryResult: 写入类别结果缓存，键冲突时后写覆盖
func (s *Store) PutCategoryResult(ctx context.Context, key string, category string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _scout_category_results(cache_key, category, payload, created_at)
        VALUES($1,$2,$3,now())
        ON CONFLICT (cache_key) DO UPDATE SET category=EXCLUDED.category, payload=EXCLUDED.payload, created_at=now()`,
		key, category, payload)
	if err != nil {
		logger.L().Warn("pg_result_put_fail", "table", "_scout_category_results", "err", err.Error())
	}
	return err
}

// GetOverallResult: 读取综合结果缓存（同样懒删除过期行）
func (s *Store) GetOverallResult(ctx context.Context, key string) ([]byte, bool) {
	return s.getResult(ctx, "_scout_overall_results", key)
}

// PutOverallResult: 写入综合结果缓存
func (s *Store) PutOverallResult(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _scout_overall_results(cache_key, payload, created_at)
        VALUES($1,$2,now())
        ON CONFLICT (cache_key) DO UPDATE SET payload=EXCLUDED.payload, created_at=now()`,
		key, payload)
	if err != nil {
		logger.L().Warn("pg_result_put_fail", "table", "_scout_overall_results", "err", err.Error())
	}
	return err
}

func (s *Store) getResult(ctx context.Context, table string, key string) ([]byte, bool) {
	var payload []byte
	var created time.Time
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM `+table+` WHERE cache_key=$1`, key)
	if err := row.Scan(&payload, &created); err != nil {
		return nil, false
	}
	if s.ttl > 0 && time.Since(created) > s.ttl {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE cache_key=$1`, key)
		logger.L().Debug("pg_result_expired", "table", table, "key", key)
		return nil, false
	}
	return payload, true
}

// FlushResults: 清空全部结果缓存（管理端触发）
func (s *Store) FlushResults(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _scout_category_results`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _scout_overall_results`); err != nil {
		return err
	}
	logger.L().Info("pg_results_flushed")
	return nil
}
