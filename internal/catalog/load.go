package catalog

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"scout-api/internal/logger"
)

// LoadCSV：从 CSV 文件加载目录
// 列序固定 name,country,lat,lng,population，首行若为表头自动跳过；
// 可解析但不合法的行记日志后丢弃，解析错误直接失败。
func LoadCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 5
	var cities []City
	skipped := 0
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog csv row %d: %w", row, err)
		}
		row++
		if row == 1 && strings.EqualFold(rec[0], "name") {
			continue
		}
		lat, err1 := strconv.ParseFloat(rec[2], 64)
		lng, err2 := strconv.ParseFloat(rec[3], 64)
		pop, err3 := strconv.ParseInt(rec[4], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("parse catalog csv row %d: %v", row, rec)
		}
		c := City{Name: rec[0], Country: rec[1], Lat: lat, Lng: lng, Population: pop}
		if !c.Valid() {
			skipped++
			logger.L().Warn("catalog_row_skipped", "row", row, "name", c.Name, "lat", c.Lat, "lng", c.Lng)
			continue
		}
		cities = append(cities, c)
	}
	logger.L().Info("catalog_csv_loaded", "path", path, "cities", len(cities), "skipped", skipped)
	return New(cities)
}

// LoadPostgres：从 _scout_cities 表加载目录
func LoadPostgres(ctx context.Context, db *sql.DB) (*Catalog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, country, lat, lng, population FROM _scout_cities`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	var cities []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.Name, &c.Country, &c.Lat, &c.Lng, &c.Population); err != nil {
			return nil, fmt.Errorf("scan city row: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate city rows: %w", err)
	}
	logger.L().Info("catalog_pg_loaded", "cities", len(cities))
	return New(cities)
}
