package cache

import "errors"

// ErrStorageUnavailable 表示磁盘缓存目录无法解析或创建，构造阶段即失败。
var ErrStorageUnavailable = errors.New("cache storage unavailable")

// ErrEncode 表示值或键在序列化阶段失败，条目不会落盘。
var ErrEncode = errors.New("cache entry encode failed")

// ErrDecode 表示磁盘条目无法反序列化。读取路径会向调用方传播该错误，
// 以区分“未缓存”与“缓存损坏”；清理任务则跳过此类文件。
var ErrDecode = errors.New("cache entry decode failed")
