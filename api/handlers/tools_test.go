package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/types"
)

type fakeToolAdmin struct {
	statuses   []types.ToolServerStatus
	restartErr error
	restarted  []string
}

func (f *fakeToolAdmin) Statuses() []types.ToolServerStatus { return f.statuses }

func (f *fakeToolAdmin) Status(name string) (types.ToolServerStatus, bool) {
	for _, s := range f.statuses {
		if s.Name == name {
			return s, true
		}
	}
	return types.ToolServerStatus{}, false
}

func (f *fakeToolAdmin) Restart(ctx context.Context, name string) error {
	f.restarted = append(f.restarted, name)
	return f.restartErr
}

func TestHandleToolStatus(t *testing.T) {
	admin := &fakeToolAdmin{statuses: []types.ToolServerStatus{
		{Name: "calculator", State: types.ServerReady},
		{Name: "alice_search", AgentID: "alice", State: types.ServerUnhealthy, Error: "exited"},
	}}
	h := NewToolsHandler(admin, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ToolStatusResponse
	decodeResponse(t, rec, &resp)
	require.Len(t, resp.Servers, 2)
	assert.Equal(t, "calculator", resp.Servers[0].Name)
	assert.Equal(t, types.ServerUnhealthy, resp.Servers[1].State)
}

func TestHandleToolRestart(t *testing.T) {
	admin := &fakeToolAdmin{statuses: []types.ToolServerStatus{
		{Name: "calculator", State: types.ServerReady},
	}}
	h := NewToolsHandler(admin, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleRestart(rec, postJSON("/api/v1/tools/restart", `{"name":"calculator"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"calculator"}, admin.restarted)

	var status types.ToolServerStatus
	decodeResponse(t, rec, &status)
	assert.Equal(t, "calculator", status.Name)
}

func TestHandleToolRestartRequiresName(t *testing.T) {
	h := NewToolsHandler(&fakeToolAdmin{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleRestart(rec, postJSON("/api/v1/tools/restart", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleToolRestartUnknownServer(t *testing.T) {
	admin := &fakeToolAdmin{
		restartErr: types.NewError(types.ErrToolNotFound, "no such server"),
	}
	h := NewToolsHandler(admin, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleRestart(rec, postJSON("/api/v1/tools/restart", `{"name":"ghost"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
