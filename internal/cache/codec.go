package cache

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Codec 定义磁盘层的值编解码与键编码契约，测试或特殊值类型可注入替代实现。
type Codec interface {
	// Encode 将值序列化为字节。
	Encode(value any) ([]byte, error)
	// Decode 将字节反序列化到 out 指向的值。
	Decode(data []byte, out any) error
	// EncodeKey 将键映射为确定、单射且文件系统安全的字符串。
	EncodeKey(key any) (string, error)
}

// JSONCodec 是默认实现：值走 encoding/json，键名取规范 JSON 序列化的 xxhash64。
type JSONCodec struct{}

// Encode 实现 Codec.Encode。
func (JSONCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode 实现 Codec.Decode。
func (JSONCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

// EncodeKey 实现 Codec.EncodeKey：对键的规范 JSON 取 xxhash64 十六进制，
// 复合键或含保留字符的键也能得到稳定且互不冲突的文件名。
func (JSONCodec) EncodeKey(key any) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw)), nil
}
