package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
)

func testManagerConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestManagerServesRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	m := NewManager(handler, testManagerConfig(), zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	resp, err := http.Get(fmt.Sprintf("http://%s/ping", m.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestManagerStartTwiceFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.Error(t, m.Start())
}

func TestManagerShutdown(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	addr := m.Addr()

	assert.True(t, m.IsRunning())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())

	// 重复关闭幂等
	require.NoError(t, m.Shutdown(context.Background()))

	// 关闭后连接被拒
	_, err := http.Get(fmt.Sprintf("http://%s/", addr))
	assert.Error(t, err)
}

func TestManagerStartAfterShutdownFails(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.Error(t, m.Start())
}

func TestManagerAddrBeforeStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	assert.Equal(t, "127.0.0.1:0", m.Addr())
}

func TestManagerListenFailure(t *testing.T) {
	cfg := testManagerConfig()
	first := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	// 占用同一端口
	cfg.Addr = first.Addr()
	second := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	assert.Error(t, second.Start())
}

func TestFromServerConfig(t *testing.T) {
	cfg := FromServerConfig(config.ServerConfig{
		HTTPPort:    9090,
		MaxConns:    64,
		ReadTimeout: 10 * time.Second,
	})

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 64, cfg.MaxConns)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	// 未设置的字段保持默认
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}
