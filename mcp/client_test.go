package mcp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convoflow/types"
)

// fakePeer 假工具服务器：读循环按 method 应答，测试可覆盖单个处理器
type fakePeer struct {
	transport *StdioTransport
	handlers  map[string]func(msg *Message) *Message
}

func newFakePeer(t *testing.T) (*Client, *fakePeer) {
	t.Helper()
	clientReads, serverWrites := io.Pipe()
	serverReads, clientWrites := io.Pipe()

	clientT := NewStdioTransport(clientWrites, clientReads, clientWrites)
	serverT := NewStdioTransport(serverWrites, serverReads, serverWrites)

	peer := &fakePeer{
		transport: serverT,
		handlers: map[string]func(msg *Message) *Message{
			"initialize": func(msg *Message) *Message {
				return NewResponse(msg.ID, json.RawMessage(
					`{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake","version":"0.1"}}`))
			},
			"tools/list": func(msg *Message) *Message {
				return NewResponse(msg.ID, json.RawMessage(
					`{"tools":[{"name":"echo","description":"echoes input","inputSchema":{"type":"object"}}]}`))
			},
			"tools/call": func(msg *Message) *Message {
				return NewResponse(msg.ID, json.RawMessage(
					`{"content":[{"type":"text","text":"pong"}],"isError":false}`))
			},
		},
	}
	go peer.serve()

	client := NewClient(clientT, nil)
	t.Cleanup(func() {
		_ = client.Close()
		_ = serverT.Close()
	})
	return client, peer
}

func (p *fakePeer) serve() {
	for {
		msg, err := p.transport.Receive()
		if err != nil {
			return
		}
		if msg.Method == "" || msg.ID == nil {
			continue
		}
		if h, ok := p.handlers[msg.Method]; ok {
			if resp := h(msg); resp != nil {
				_ = p.transport.Send(resp)
			}
		} else {
			_ = p.transport.Send(NewErrorResponse(msg.ID, CodeMethodNotFound, "unknown method"))
		}
	}
}

func TestClientInitializeHandshake(t *testing.T) {
	client, _ := newFakePeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Initialize(ctx))
}

func TestClientListTools(t *testing.T) {
	client, _ := newFakePeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "echoes input", tools[0].Description)
	assert.JSONEq(t, `{"type":"object"}`, string(tools[0].InputSchema))
}

func TestClientCallToolJoinsTextParts(t *testing.T) {
	client, peer := newFakePeer(t)
	peer.handlers["tools/call"] = func(msg *Message) *Message {
		return NewResponse(msg.ID, json.RawMessage(
			`{"content":[{"type":"text","text":"line1"},{"type":"image","text":"skip"},{"type":"text","text":"line2"}]}`))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.CallTool(ctx, "echo", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", result.Content)
	assert.False(t, result.IsError)
}

func TestClientCallToolReportsToolError(t *testing.T) {
	client, peer := newFakePeer(t)
	peer.handlers["tools/call"] = func(msg *Message) *Message {
		return NewResponse(msg.ID, json.RawMessage(
			`{"content":[{"type":"text","text":"file not found"}],"isError":true}`))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.CallTool(ctx, "read_file", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "file not found", result.Content)
}

func TestClientRPCErrorMapsToProtocol(t *testing.T) {
	client, _ := newFakePeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.call(ctx, "no/such/method", map[string]any{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrToolProtocol))
}

func TestClientCallTimeout(t *testing.T) {
	client, peer := newFakePeer(t)
	peer.handlers["tools/call"] = func(msg *Message) *Message { return nil }
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.CallTool(ctx, "slow", nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrToolCallTimeout))
}

func TestClientPendingFailsWhenPeerCloses(t *testing.T) {
	client, peer := newFakePeer(t)
	peer.handlers["tools/call"] = func(msg *Message) *Message {
		_ = peer.transport.Close()
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.CallTool(ctx, "echo", nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrToolServerGone))
}
