/*
Package api 定义 convoflow 命令面 HTTP API 的请求/响应结构与服务器装配。

# 概述

api 包是编排引擎对外的唯一控制入口：REST 命令面驱动会话生命周期
（start/continue/pause/resume/stop/status），WebSocket 事件流推送
会话过程事件（思考、发言、工具调用、cycle 推进、生命周期变更）。

# 端点

  - POST /api/v1/conversation/start     启动会话
  - POST /api/v1/conversation/continue  驱动若干 cycle
  - POST /api/v1/conversation/pause     轮边界暂停
  - POST /api/v1/conversation/resume    恢复运行
  - POST /api/v1/conversation/stop      终止并取消在途调用
  - GET  /api/v1/conversation/status    状态快照
  - GET  /api/v1/conversation/export    Markdown 转写稿
  - GET  /api/v1/scenarios              场景清单
  - POST /api/v1/models/test            模型端点连通性检查
  - GET  /api/v1/tools/status           工具服务器状态
  - POST /api/v1/tools/restart          重启指定工具服务器
  - GET  /ws/events                     WebSocket 事件流
  - GET  /healthz                       健康检查
  - GET  /metrics                       Prometheus 指标

# 鉴权

启用 server.auth 后，所有变更类命令要求 Authorization: Bearer <jwt>，
令牌使用 HS256 共享密钥签发。只读端点与事件流不要求令牌。
*/
package api
