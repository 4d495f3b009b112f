package cache

import "time"

// diskEntry 是落盘的信封结构。Value 保存 Codec 输出的原始字节，
// 清理任务只需解码信封即可拿到过期时间，无需还原值本身。
type diskEntry struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// expired 判定条目此刻是否过期；过期边界取闭区间（now >= ExpiresAt 即过期）。
func (e diskEntry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
