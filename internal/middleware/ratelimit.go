package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：单次评分请求是 O(cities×lines) 的计算，流量峰值时对入口限速，
// 避免请求队列与缓存后端被过载；按环境变量开关与速率配置。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := time.Now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") == "true" {
		qps := 200
		if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
			if n, e := strconv.Atoi(s); e == nil && n > 0 {
				qps = n
			}
		}
		tb := &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix()}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return next
}
