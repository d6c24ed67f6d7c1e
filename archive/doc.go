// Package archive 持久化已终止会话的最终快照。
//
// Store 接口之下提供三类后端：
//   - 关系型（sqlite / mysql / postgres，经 GORM）
//   - Redis（可配置 TTL 的记录过期）
//   - MongoDB
//
// 归档是尽力而为的旁路：写入失败记一条 warn 日志，绝不影响会话本身。
package archive
