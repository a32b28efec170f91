// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"scout-api/internal/engine"
	"scout-api/internal/logger"
	"scout-api/internal/protocol"
	"scout-api/internal/store"
)

// eventStream：NDJSON 事件流写出器
// 背景：进度事件与最终结果共用一条响应流，每个事件一行 JSON 并立即冲刷；
// 进度回调可能来自并行分片协程，写出必须串行化。
type eventStream struct {
	mu  sync.Mutex
	enc *json.Encoder
	fl  http.Flusher
}

func newEventStream(w http.ResponseWriter) *eventStream {
	fl, _ := w.(http.Flusher)
	return &eventStream{enc: json.NewEncoder(w), fl: fl}
}

func (s *eventStream) Send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(v)
	if s.fl != nil {
		s.fl.Flush()
	}
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到前缀下
func BuildRoutes(coord *engine.Coordinator, st *store.Store) *http.ServeMux {
	apiMux := http.NewServeMux()

	// 文档注释：评分请求入口（NDJSON 事件流）
	// 背景：请求体为一条消息信封；响应按行输出 progress/结果/error 事件，
	// 调用方靠 id 与 type 配对。校验失败同步拒绝，不进入计算。
	apiMux.HandleFunc("POST /scout", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("content-type", "application/x-ndjson; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		stream := newEventStream(w)

		var req protocol.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			stream.Send(protocol.NewError("", "decode request: %s", err.Error()))
			return
		}
		if err := req.Validate(); err != nil {
			logger.L().Warn("scout_request_invalid", "id", req.ID, "err", err.Error())
			stream.Send(protocol.NewError(req.ID, "invalid request: %s", err.Error()))
			return
		}
		logger.L().Debug("scout_request_begin", "id", req.ID, "type", req.Type)

		sink := func(p protocol.Progress) { stream.Send(p) }
		switch req.Type {
		case protocol.TypeInit:
			stream.Send(coord.Ready())
		case protocol.TypeScoutCategory:
			res, errEv := coord.ScoutCategory(ctx, req, sink)
			if errEv != nil {
				stream.Send(errEv)
				return
			}
			stream.Send(res)
		case protocol.TypeScoutOverall:
			res, errEv := coord.ScoutOverall(ctx, req, sink)
			if errEv != nil {
				stream.Send(errEv)
				return
			}
			stream.Send(res)
		case protocol.TypeScoutBatch:
			res, errEv := coord.ScoutBatch(ctx, req, sink)
			if errEv != nil {
				stream.Send(errEv)
				return
			}
			stream.Send(res)
		}
		logger.L().Debug("scout_request_done", "id", req.ID, "type", req.Type)
	})

	// 就绪探针：当前执行层快照
	apiMux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_ = json.NewEncoder(w).Encode(coord.Ready())
	})

	apiMux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		m := map[string]any{
			"backend":    coord.Ready().Backend,
			"numThreads": coord.Ready().NumThreads,
		}
		if st != nil {
			if n, err := st.CountCities(r.Context()); err == nil {
				m["cities"] = n
			}
		}
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_ = json.NewEncoder(w).Encode(m)
	})

	// 管理端：清空各级结果缓存
	apiMux.HandleFunc("POST /flush-cache", func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get("x-admin-token")
		if t == "" || t != os.Getenv("ADMIN_TOKEN") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := coord.FlushCaches(r.Context()); err != nil {
			logger.L().Error("flush_cache_error", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logger.L().Info("flush_cache_ok")
		w.WriteHeader(http.StatusNoContent)
	})

	return apiMux
}
