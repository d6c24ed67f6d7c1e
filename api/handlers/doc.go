/*
Package handlers 提供 convoflow 命令面 HTTP API 的请求处理器实现。

# 概述

handlers 包实现所有 HTTP 端点的请求处理逻辑，包括会话生命周期命令、
场景清单、模型端点检查、工具服务器管理、WebSocket 事件流以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - ConversationHandler — start/continue/pause/resume/stop/status/export
  - ScenarioHandler     — 场景清单
  - ModelHandler        — 模型端点连通性与模型安装检查
  - ToolsHandler        — 工具服务器状态查询与重启
  - FeedHandler         — WebSocket 事件流（Broadcaster 订阅桥接）
  - HealthHandler       — /healthz（含归档后端探测）
  - Response            — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo           — 结构化错误信息，含 code、retryable 标记
  - ResponseWriter      — 包装 http.ResponseWriter 以捕获状态码
*/
package handlers
