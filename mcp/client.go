package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/types"
)

// Client 单个工具服务器会话的 JSON-RPC 客户端。
// 请求 ID 单调递增，响应通过 pending 表按 ID 配对；
// 读循环退出后所有挂起请求收到失败通知。
type Client struct {
	transport Transport
	logger    *zap.Logger

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *Message
	done    chan struct{}

	closeOnce sync.Once
}

// NewClient 创建客户端并启动读循环
func NewClient(transport Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		transport: transport,
		logger:    logger,
		pending:   make(map[int64]chan *Message),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer c.failPending()
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("mcp read loop exited", zap.Error(err))
			}
			return
		}
		c.dispatch(msg)
	}
}

// dispatch 将响应投递给等待方。服务器主动发来的请求与通知被忽略。
func (c *Client) dispatch(msg *Message) {
	if msg.Result == nil && msg.Error == nil {
		return
	}
	id, ok := numericID(msg.ID)
	if !ok {
		return
	}

	c.mu.Lock()
	ch, exists := c.pending[id]
	c.mu.Unlock()
	if !exists {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// numericID JSON 解码后的数字 ID 统一为 int64
func numericID(id any) (int64, bool) {
	switch v := id.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// failPending 读循环结束后唤醒所有等待方
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.pending = make(map[int64]chan *Message)
}

// call 发送请求并等待配对响应
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan *Message, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.transport.Send(NewRequest(id, method, params)); err != nil {
		return nil, types.NewError(types.ErrToolTransport, fmt.Sprintf("send %s: %v", method, err)).WithCause(err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrToolCallTimeout, fmt.Sprintf("%s timed out", method)).WithCause(ctx.Err())
		}
		return nil, types.NewError(types.ErrToolTransport, fmt.Sprintf("%s canceled", method)).WithCause(ctx.Err())
	case <-c.done:
		return nil, types.NewError(types.ErrToolServerGone, fmt.Sprintf("server closed during %s", method))
	case resp := <-ch:
		if resp.Error != nil {
			return nil, types.NewError(types.ErrToolProtocol,
				fmt.Sprintf("%s failed: %d %s", method, resp.Error.Code, resp.Error.Message))
		}
		return resp.Result, nil
	}
}

// initializeResult 握手响应中本客户端关心的字段
type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// Initialize 执行能力握手。必须在任何其他调用之前完成。
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"clientInfo": map[string]any{
			"name":    "convoflow",
			"version": "1.0.0",
		},
		"capabilities": map[string]any{},
	}
	raw, err := c.call(ctx, "initialize", params)
	if err != nil {
		return err
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.NewError(types.ErrToolProtocol, "malformed initialize response").WithCause(err)
	}
	c.logger.Debug("mcp handshake complete",
		zap.String("server", result.ServerInfo.Name),
		zap.String("server_version", result.ServerInfo.Version),
		zap.String("protocol", result.ProtocolVersion))

	if err := c.transport.Send(NewNotification("notifications/initialized", map[string]any{})); err != nil {
		return types.NewError(types.ErrToolTransport, "send initialized notification").WithCause(err)
	}
	return nil
}

type listToolsResult struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

// ListTools 枚举服务器导出的工具
func (c *Client) ListTools(ctx context.Context) ([]types.ToolDefinition, error) {
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, types.NewError(types.ErrToolProtocol, "malformed tools/list response").WithCause(err)
	}

	defs := make([]types.ToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		defs = append(defs, types.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs, nil
}

// CallResult 一次工具调用的响应内容。
// IsError 表示工具自身报告失败，内容仍回传给模型。
type CallResult struct {
	Content string
	IsError bool
}

type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// CallTool 调用一个工具并拼接其文本内容
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (CallResult, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}
	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return CallResult{}, err
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallResult{}, types.NewError(types.ErrToolProtocol, "malformed tools/call response").WithCause(err)
	}

	var sb []byte
	for _, part := range result.Content {
		if part.Type != "text" {
			continue
		}
		if len(sb) > 0 {
			sb = append(sb, '\n')
		}
		sb = append(sb, part.Text...)
	}
	return CallResult{Content: string(sb), IsError: result.IsError}, nil
}

// Close 关闭会话并唤醒等待方
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close()
	})
	return err
}
