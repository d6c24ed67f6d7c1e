// Package migration 管理归档数据库的 Schema 版本。
//
// 基于 golang-migrate，迁移脚本按方言（postgres / mysql / sqlite）
// 嵌入二进制，运行时按归档配置选择。关系型归档存储日常用 GORM
// 自动建表即可；需要受控 Schema 变更的部署通过 convoflow migrate
// 子命令走这里的版本化迁移。
package migration
