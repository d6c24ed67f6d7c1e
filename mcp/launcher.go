package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/types"
)

// Session 一个已建立的工具服务器会话
type Session interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]types.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (CallResult, error)
	Close() error
}

// Launcher 按启动规格建立会话，测试可注入假实现
type Launcher interface {
	Launch(ctx context.Context, spec types.ToolServerSpec) (Session, error)
}

// ExecLauncher 以子进程方式启动工具服务器，经 stdio 通信。
// Close 先关闭 stdin 触发优雅退出，宽限期内未退出则强制终止。
type ExecLauncher struct {
	gracePeriod time.Duration
	logger      *zap.Logger
}

// NewExecLauncher 创建子进程启动器
func NewExecLauncher(gracePeriod time.Duration, logger *zap.Logger) *ExecLauncher {
	if gracePeriod <= 0 {
		gracePeriod = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecLauncher{gracePeriod: gracePeriod, logger: logger}
}

// Launch 启动子进程并返回其 stdio 会话
func (l *ExecLauncher) Launch(_ context.Context, spec types.ToolServerSpec) (Session, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, types.NewError(types.ErrToolStartupFailed, "open stdin pipe").WithCause(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, types.NewError(types.ErrToolStartupFailed, "open stdout pipe").WithCause(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, types.NewError(types.ErrToolStartupFailed, "open stderr pipe").WithCause(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, types.NewError(types.ErrToolStartupFailed,
			fmt.Sprintf("start %s: %v", spec.Command, err)).WithCause(err)
	}

	logger := l.logger.With(zap.String("server", spec.Name), zap.Int("pid", cmd.Process.Pid))
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("tool server stderr", zap.String("line", scanner.Text()))
		}
	}()

	transport := NewStdioTransport(stdin, stdout, stdin)
	client := NewClient(transport, logger)

	return &execSession{
		Client:      client,
		cmd:         cmd,
		gracePeriod: l.gracePeriod,
		logger:      logger,
	}, nil
}

// execSession 绑定客户端与其子进程
type execSession struct {
	*Client
	cmd         *exec.Cmd
	gracePeriod time.Duration
	logger      *zap.Logger
}

// Close 关闭 stdin 后等待进程退出，超过宽限期强制 kill
func (s *execSession) Close() error {
	err := s.Client.Close()

	exited := make(chan error, 1)
	go func() { exited <- s.cmd.Wait() }()

	select {
	case <-exited:
	case <-time.After(s.gracePeriod):
		s.logger.Warn("tool server did not exit within grace period, killing")
		if killErr := s.cmd.Process.Kill(); killErr != nil {
			s.logger.Error("kill tool server", zap.Error(killErr))
		}
		<-exited
	}
	return err
}
