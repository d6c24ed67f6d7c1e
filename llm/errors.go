package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/BaSui01/convoflow/types"
)

// classifyTransportError 将网络层错误映射到统一错误码。
// 超时（含 ctx deadline）与连接失败区分开，便于上层决定是否终止会话。
func classifyTransportError(err error, provider string) *types.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrInvocationTimeout, "model invocation timed out").
			WithCause(err).
			WithRetryable(true).
			WithProvider(provider)
	}
	return types.NewError(types.ErrEndpointUnreachable, "model endpoint unreachable").
		WithCause(err).
		WithRetryable(true).
		WithProvider(provider)
}

// mapHTTPError 将非 2xx 响应映射到统一错误码。
// Ollama 对未安装的模型返回 404 与 "model ... not found" 文案。
func mapHTTPError(status int, body io.Reader, provider string) *types.Error {
	msg := readErrorMessage(body)

	if status == http.StatusNotFound && strings.Contains(strings.ToLower(msg), "model") {
		return types.NewError(types.ErrModelNotFound, msg).
			WithHTTPStatus(status).
			WithProvider(provider)
	}
	if status >= 500 {
		return types.NewError(types.ErrEndpointUnreachable, msg).
			WithHTTPStatus(status).
			WithRetryable(true).
			WithProvider(provider)
	}
	return types.NewError(types.ErrMalformedResponse, msg).
		WithHTTPStatus(status).
		WithProvider(provider)
}

// readErrorMessage 尽力从错误响应体中提取 error 字段
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "upstream error"
	}
	var payload struct {
		Error string `json:"error"`
	}
	if jsonErr := json.Unmarshal(raw, &payload); jsonErr == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
