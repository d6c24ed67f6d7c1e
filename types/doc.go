// Copyright (c) ConvoFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 convoflow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 conversation、llm、mcp、
events、api 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - Message / Role / ToolCall — 对话消息（append-only 历史的最小单元）
  - Agent                     — 运行期 Agent（人格、模型端点、工具句柄）
  - ScenarioSnapshot          — 会话启动时冻结的场景参数
  - Phase / Termination       — 会话生命周期状态与终止原因
  - ConversationSnapshot      — 状态的只读快照（status / export / archive 共用）
  - ToolDefinition / ToolServerSpec / ToolServerState — 工具服务器契约
  - Error / ErrorCode         — 结构化错误体系，含 HTTP 状态码、Retryable 标记

# 主要能力

  - 错误工具链：IsErrorCode / IsRetryable / GetErrorCode
  - 终止原因构造：KeywordReason("goodbye") → "keyword:goodbye"
  - 消息深拷贝：CloneMessage（跨 goroutine 安全传递）
*/
package types
