package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("conversation not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Backend 后端类型标识，与 config.ArchiveConfig.Backend 对应
const (
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Summary 归档清单条目，List 返回的轻量视图
type Summary struct {
	ID           string    `json:"id"`
	Scenario     string    `json:"scenario"`
	Phase        string    `json:"phase"`
	Reason       string    `json:"reason,omitempty"`
	Cycles       int       `json:"cycles"`
	MessageCount int       `json:"message_count"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// Store 会话归档存储。Save 以会话 ID 为键做幂等覆盖写。
type Store interface {
	// Save 归档一份终态快照，同 ID 重复归档覆盖旧记录
	Save(ctx context.Context, snap types.ConversationSnapshot) error

	// Load 按会话 ID 取回完整快照，不存在返回 ErrNotFound
	Load(ctx context.Context, id string) (types.ConversationSnapshot, error)

	// List 按归档时间倒序返回至多 limit 条清单，limit <= 0 表示不限
	List(ctx context.Context, limit int) ([]Summary, error)

	// Delete 删除归档记录，不存在返回 ErrNotFound
	Delete(ctx context.Context, id string) error

	// Ping 检查后端连通性
	Ping(ctx context.Context) error

	// Close 释放后端连接
	Close() error
}

// New 按配置构造归档存储
func New(cfg config.ArchiveConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Backend) {
	case BackendSQLite, BackendMySQL, BackendPostgres:
		return NewRelationalStore(cfg, logger)
	case BackendRedis:
		return NewRedisStore(cfg, logger)
	case BackendMongo:
		return NewMongoStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %q", cfg.Backend)
	}
}

// summarize 从快照提取清单字段
func summarize(snap types.ConversationSnapshot, archivedAt time.Time) Summary {
	s := Summary{
		ID:           snap.ID,
		Scenario:     snap.Scenario.Name,
		Phase:        string(snap.Phase),
		Cycles:       snap.CurrentCycle,
		MessageCount: len(snap.Messages),
		ArchivedAt:   archivedAt,
	}
	if snap.Termination != nil {
		s.Reason = snap.Termination.Reason
	}
	return s
}
