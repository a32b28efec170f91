// 消息侧入口：连接 NATS 并以队列组消费评分请求
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"scout-api/internal/catalog"
	"scout-api/internal/config"
	"scout-api/internal/engine"
	"scout-api/internal/logger"
	"scout-api/internal/migrate"
	"scout-api/internal/store"
	"scout-api/internal/utils"
	"scout-api/internal/worker"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	if os.Getenv("LOG_SERVICE") == "" {
		_ = os.Setenv("LOG_SERVICE", "scout-worker")
	}
	l := logger.Setup()

	opt := engine.OptionsFromEnv()

	var st *store.Store
	if db, err := utils.OpenPostgresFromEnv(); err != nil {
		l.Warn("db_open_error", "err", err)
	} else if err := db.Ping(); err != nil {
		l.Warn("db_ping_error", "err", err)
		_ = db.Close()
	} else {
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db, opt.CacheTTL)
		defer st.Close()
	}

	rc := utils.OpenRedisFromEnv()

	csvPath := os.Getenv("CITIES_CSV")
	if csvPath == "" {
		csvPath = filepath.Join("data", "cities", "cities.csv")
	}
	var cat *catalog.Catalog
	var err error
	if _, serr := os.Stat(csvPath); serr == nil {
		cat, err = catalog.LoadCSV(csvPath)
	} else if st != nil {
		cat, err = catalog.LoadPostgres(context.Background(), st.DB())
	}
	if err != nil || cat == nil || cat.Len() == 0 {
		l.Error("catalog_unavailable", "csv", csvPath, "err", err)
		os.Exit(1)
	}

	coord := engine.New(cat, config.FromEnv(), opt, st, rc)

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://127.0.0.1:4222"
	}
	nc, err := worker.Connect(natsURL)
	if err != nil {
		l.Error("nats_connect_error", "url", natsURL, "err", err)
		os.Exit(1)
	}
	defer nc.Close()
	l.Info("nats_connect_ok", "url", natsURL)

	w := worker.New(nc, coord)
	if err := w.Start(context.Background()); err != nil {
		l.Error("worker_start_error", "err", err)
		os.Exit(1)
	}
	// 订阅挂好再装载核心，parallelReady 广播不会丢
	ready := coord.Load(context.Background())
	l.Info("engine_ready", "backend", ready.Backend, "threads", ready.NumThreads)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	l.Info("worker_shutdown")
	w.Stop()
}
