// 目录导入工具：从 CSV 读取城市并批量 UPSERT 到 PostgreSQL
package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"scout-api/internal/catalog"
	"scout-api/internal/engine"
	"scout-api/internal/migrate"
	"scout-api/internal/store"
	"scout-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))

	csvPath := os.Getenv("CITIES_CSV")
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	if csvPath == "" {
		csvPath = filepath.Join("data", "cities", "cities.csv")
	}

	cat, err := catalog.LoadCSV(csvPath)
	if err != nil {
		log.Fatal(err)
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		log.Fatal(err)
	}

	st := store.AttachDB(db, engine.OptionsFromEnv().CacheTTL)
	n, err := st.UpsertCities(context.Background(), cat.All())
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("imported %d cities from %s", n, csvPath)
}
