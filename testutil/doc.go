// Copyright (c) ConvoFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 convoflow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 等待辅助: WaitForChannel，带超时的通道接收
  - 数据工具: MustJSON / MustParseJSON，简化测试数据构造
  - 流式辅助: CollectStreamChunks / CollectStreamContent / ChunkChannel，
    用于模型流式响应测试

# 子包

  - testutil/mocks: Mock 实现，包括 MockProvider（模型端点）、
    MockToolRuntime（工具运行时）、MockArchiveStore（归档存储），
    均支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供预置引擎配置、场景、
    ChatResponse 与 StreamChunk 样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewSuccessProvider("hello")
	resp, err := provider.Completion(ctx, req)
	require.NoError(t, err)
*/
package testutil
