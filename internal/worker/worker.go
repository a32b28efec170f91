// 包 worker：NATS 消息侧入口
// 背景：HTTP 之外的第二个传输面，同一套消息信封；多实例用队列组分摊请求。
// 主题约定：请求 scout.req，进度 scout.progress.<id>，并行就绪广播 scout.ready.parallel；
// 带 Reply 的请求按请求应答模式回包，否则发布到 scout.res.<id>。
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"scout-api/internal/engine"
	"scout-api/internal/logger"
	"scout-api/internal/protocol"
)

const (
	SubjectRequest       = "scout.req"
	SubjectProgress      = "scout.progress."
	SubjectResult        = "scout.res."
	SubjectParallelReady = "scout.ready.parallel"
	queueGroup           = "scout-workers"
)

// Worker：订阅请求主题并驱动协调器
type Worker struct {
	nc    *nats.Conn
	coord *engine.Coordinator
	sub   *nats.Subscription
}

// Connect：按 URL 建立 NATS 连接，带重连参数
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("scout-worker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func New(nc *nats.Conn, coord *engine.Coordinator) *Worker {
	return &Worker{nc: nc, coord: coord}
}

// Start：挂接并行就绪广播并开始消费请求
func (w *Worker) Start(ctx context.Context) error {
	w.coord.OnParallelReady = func(p protocol.ParallelReady) {
		w.publish(SubjectParallelReady, p)
	}
	sub, err := w.nc.QueueSubscribe(SubjectRequest, queueGroup, func(msg *nats.Msg) {
		go w.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	w.sub = sub
	logger.L().Info("worker_subscribed", "subject", SubjectRequest, "queue", queueGroup)
	return nil
}

// Stop：停止消费，在途请求自行收尾
func (w *Worker) Stop() {
	if w.sub != nil {
		_ = w.sub.Drain()
	}
}

func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	req, err := protocol.Decode(msg.Data)
	if err != nil {
		w.respond(msg, "", protocol.NewError("", "decode request: %s", err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		logger.L().Warn("worker_request_invalid", "id", req.ID, "err", err.Error())
		w.respond(msg, req.ID, protocol.NewError(req.ID, "invalid request: %s", err.Error()))
		return
	}
	logger.L().Debug("worker_request_begin", "id", req.ID, "type", req.Type)

	sink := func(p protocol.Progress) { w.publish(SubjectProgress+req.ID, p) }
	switch req.Type {
	case protocol.TypeInit:
		w.respond(msg, req.ID, w.coord.Ready())
	case protocol.TypeScoutCategory:
		res, errEv := w.coord.ScoutCategory(ctx, req, sink)
		if errEv != nil {
			w.respond(msg, req.ID, errEv)
			return
		}
		w.respond(msg, req.ID, res)
	case protocol.TypeScoutOverall:
		res, errEv := w.coord.ScoutOverall(ctx, req, sink)
		if errEv != nil {
			w.respond(msg, req.ID, errEv)
			return
		}
		w.respond(msg, req.ID, res)
	case protocol.TypeScoutBatch:
		res, errEv := w.coord.ScoutBatch(ctx, req, sink)
		if errEv != nil {
			w.respond(msg, req.ID, errEv)
			return
		}
		w.respond(msg, req.ID, res)
	}
	logger.L().Debug("worker_request_done", "id", req.ID, "type", req.Type)
}

// respond：有 Reply 走请求应答，否则发布到结果主题
func (w *Worker) respond(msg *nats.Msg, id string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.L().Error("worker_marshal_error", "err", err.Error())
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(b); err != nil {
			logger.L().Warn("worker_respond_fail", "err", err.Error())
		}
		return
	}
	if err := w.nc.Publish(SubjectResult+id, b); err != nil {
		logger.L().Warn("worker_publish_fail", "err", err.Error())
	}
}

func (w *Worker) publish(subject string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := w.nc.Publish(subject, b); err != nil {
		logger.L().Warn("worker_publish_fail", "subject", subject, "err", err.Error())
	}
}
