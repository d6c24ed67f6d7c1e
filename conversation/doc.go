// Copyright (c) ConvoFlow Authors.
// Licensed under the MIT License.

/*
Package conversation 实现轮询制多 Agent 会话的编排核心。

# 架构

单一驱动 goroutine 独占会话状态，所有变更串行通过它；并行只存在于
周边：模型流式传输、工具子进程、事件扇出。

  - State        — 会话状态（append-only 消息历史、phase、终止记录）
  - CycleTracker — cycle 计数与终止判定（max_cycles → keyword → silence）
  - TurnExecutor — 单轮执行（模型调用、思考过滤、工具调用循环）
  - Orchestrator — 状态机（idle/running/paused/terminated）与运行循环
  - Initialize   — 一次性装配（场景冻结、模板渲染、开场消息）

# 控制流

Initialize → Orchestrator.Start → Continue 循环 { TurnExecutor →
CycleTracker } → 终止。pause 在轮边界生效，stop 取消在途调用。
*/
package conversation
