// Copyright (c) ConvoFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 convoflow 服务端程序入口。

# 概述

cmd/convoflow 是多 Agent 对话引擎的可执行入口，提供命令面 HTTP API、
WebSocket 事件流、数据库迁移、令牌签发和健康检查等子命令。程序支持
YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集与
OpenTelemetry 遥测。

# 主要能力

  - 子命令：serve（启动引擎）、migrate（归档库迁移）、token（签发
    操作令牌）、version、health
  - serve 流程：加载并校验配置 → 构建日志器 → 交由根包 convoflow
    装配 Engine → Start → WaitForShutdown
  - 优雅关闭：信号监听 → 停止 HTTP → 停止编排 → 停止工具服务器 →
    关闭归档与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
