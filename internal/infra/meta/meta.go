// Package meta 提供课程目录与偏好的 KV 持久化（整文档 get/set）。
//
// 两个后端实现同一个 2 方法接口：
// - File：<library>/meta/<key>.json，fsx 原子写（测试与无 cgo 环境友好）
// - SQLite：<library>/meta.db 单表 KV（CLI 默认后端）
//
// 契约：value 是不透明字节（上层用 JSON）；Set 从调用方视角原子；
// 单写者模型（Catalog Store 持锁做整文档 read-modify-write），最后写入者胜。
package meta

// 众所周知的文档 key。
const (
	// KeyCourses 保存课程目录：Course 数组的 JSON。
	KeyCourses = "courses"
	// KeyStorageLimit 保存存储上限偏好：十进制整数字节。
	KeyStorageLimit = "storage_limit"
)

// Store 是 Metadata Store 的最小接口。
type Store interface {
	// Get 读取 key 对应的文档；不存在时 ok=false 且无错误。
	Get(key string) ([]byte, bool, error)
	// Set 写入（覆盖）key 对应的文档。
	Set(key string, value []byte) error
}
