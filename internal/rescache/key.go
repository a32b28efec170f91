// 包 rescache：评分结果缓存（内存 LRU → Redis → PostgreSQL 三级链）
// 背景：相同线集 + 相同参数的重复请求占比很高，而一次全量评分是 O(cities×lines) 的计算；
// 缓存键由输入内容派生，与传入顺序和请求时间无关。
package rescache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"scout-api/internal/score"
)

// CategoryKey：类别结果缓存键
// 由排序后的线集指纹、类别与人口下限做 SHA-256，相同输入必得相同键
func CategoryKey(lines []score.InputLine, cat score.Category, popFloor int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "cat|%s|%d|", cat, popFloor)
	h.Write([]byte(score.LinesFingerprint(lines)))
	return hex.EncodeToString(h.Sum(nil))
}

// OverallKey：综合结果缓存键
func OverallKey(lines []score.InputLine, popFloor int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "all|%d|", popFloor)
	h.Write([]byte(score.LinesFingerprint(lines)))
	return hex.EncodeToString(h.Sum(nil))
}
