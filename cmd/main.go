// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"scout-api/internal/api"
	"scout-api/internal/catalog"
	"scout-api/internal/config"
	"scout-api/internal/engine"
	"scout-api/internal/logger"
	"scout-api/internal/metrics"
	"scout-api/internal/middleware"
	"scout-api/internal/migrate"
	"scout-api/internal/store"
	"scout-api/internal/utils"
	"scout-api/internal/version"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok", "commit", version.Commit)
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)

	opt := engine.OptionsFromEnv()

	// 背景：Postgres 承载城市目录与结果缓存的最深一级；不可用时服务仍能以
	// CSV 目录 + 内存/Redis 缓存运行，只降级不退出
	var st *store.Store
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Warn("db_open_error", "err", err)
	} else if err := db.Ping(); err != nil {
		l.Warn("db_ping_error", "err", err)
		_ = db.Close()
	} else {
		l.Info("db_ping_ok")
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db, opt.CacheTTL)
		defer st.Close()
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	// 城市目录：优先 CSV 文件，缺失时回退数据库；两者皆空无法评分，直接退出
	csvPath := os.Getenv("CITIES_CSV")
	if csvPath == "" {
		csvPath = filepath.Join("data", "cities", "cities.csv")
	}
	var cat *catalog.Catalog
	if _, err := os.Stat(csvPath); err == nil {
		cat, err = catalog.LoadCSV(csvPath)
		if err != nil {
			l.Error("catalog_csv_error", "path", csvPath, "err", err)
			os.Exit(1)
		}
	} else if st != nil {
		cat, err = catalog.LoadPostgres(context.Background(), st.DB())
		if err != nil {
			l.Error("catalog_pg_error", "err", err)
			os.Exit(1)
		}
	}
	if cat == nil || cat.Len() == 0 {
		l.Error("catalog_empty", "csv", csvPath)
		os.Exit(1)
	}
	l.Info("catalog_ready", "cities", cat.Len())

	cfg := config.FromEnv()
	l.Info("scoring_config", "kernel", string(cfg.Kernel), "param_km", cfg.KernelParamKm, "cutoff_km", cfg.MaxInfluenceKm)

	coord := engine.New(cat, cfg, opt, st, rc)
	ready := coord.Load(context.Background())
	l.Info("engine_ready", "backend", ready.Backend, "threads", ready.NumThreads, "parallel_initializing", ready.ParallelInitializing)

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(coord, st)
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler}
	tlsEnable := os.Getenv("TLS_ENABLE")
	if tlsEnable == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		_ = utils.EnsureSelfSignedCert(certPath, keyPath, "scout-api.local")
		// 可选：启动HTTP重定向到HTTPS（不改变HTTPS运行端口）
		if os.Getenv("TLS_REDIRECT_ENABLE") == "true" {
			redirAddr := os.Getenv("TLS_REDIRECT_ADDR")
			if redirAddr == "" {
				redirAddr = ":80"
			}
			go func() {
				httpRedir := http.NewServeMux()
				httpRedir.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
					host := r.Host
					// 替换目标端口为HTTPS服务端口
					httpsPort := strings.TrimPrefix(addr, ":")
					baseHost := host
					if i := strings.LastIndex(host, ":"); i != -1 {
						baseHost = host[:i]
					}
					targetHost := baseHost
					if httpsPort != "" {
						targetHost = baseHost + ":" + httpsPort
					}
					target := "https://" + targetHost + r.URL.RequestURI()
					http.Redirect(w, r, target, http.StatusMovedPermanently)
					l.Debug("http_redirect", "from", r.Host, "to", target)
				})
				l.Info("http_redirect_listening", "addr", redirAddr, "to", "https"+addr)
				_ = http.ListenAndServe(redirAddr, logger.AccessMiddleware(l)(httpRedir))
			}()
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		_ = s.ListenAndServeTLS(certPath, keyPath)
		return
	}
	l.Info("listening", "addr", addr)
	_ = s.ListenAndServe()
}
