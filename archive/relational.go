package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/internal/database"
	"github.com/BaSui01/convoflow/types"
)

// Save 失败时的总尝试次数，只有瞬时错误会重试
const saveAttempts = 3

// conversationRecord 关系型后端的归档行。完整快照 JSON 序列化进 Payload，
// 清单字段冗余成列供 List 查询。
type conversationRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Scenario     string    `gorm:"size:128;index"`
	Phase        string    `gorm:"size:16"`
	Reason       string    `gorm:"size:128"`
	Cycles       int       `gorm:""`
	MessageCount int       `gorm:""`
	Payload      []byte    `gorm:"type:blob"`
	ArchivedAt   time.Time `gorm:"index"`
}

// TableName 指定表名
func (conversationRecord) TableName() string {
	return "conversations"
}

// RelationalStore 基于 GORM 的归档存储，sqlite / mysql / postgres 共用
type RelationalStore struct {
	db     *gorm.DB
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewRelationalStore 按配置打开数据库并自动建表
func NewRelationalStore(cfg config.ArchiveConfig, logger *zap.Logger) (*RelationalStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive backend %q requires a dsn: %w", cfg.Backend, ErrInvalidInput)
	}

	var dialector gorm.Dialector
	switch cfg.Backend {
	case BackendSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case BackendMySQL:
		dialector = mysql.Open(cfg.DSN)
	case BackendPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported relational backend: %q", cfg.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect archive database: %w", err)
	}

	if err := database.Tune(db, database.DefaultPoolConfig(), logger); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&conversationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate archive schema: %w", err)
	}

	logger.Info("archive database connected", zap.String("backend", cfg.Backend))
	return newRelationalStore(db, logger), nil
}

func newRelationalStore(db *gorm.DB, logger *zap.Logger) *RelationalStore {
	return &RelationalStore{
		db:     db,
		logger: logger.With(zap.String("component", "archive_relational")),
	}
}

func (s *RelationalStore) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save 以会话 ID 为主键覆盖写
func (s *RelationalStore) Save(ctx context.Context, snap types.ConversationSnapshot) error {
	if err := s.guard(); err != nil {
		return err
	}
	if snap.ID == "" {
		return fmt.Errorf("snapshot has no conversation id: %w", ErrInvalidInput)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	sum := summarize(snap, time.Now().UTC())
	rec := conversationRecord{
		ID:           sum.ID,
		Scenario:     sum.Scenario,
		Phase:        sum.Phase,
		Reason:       sum.Reason,
		Cycles:       sum.Cycles,
		MessageCount: sum.MessageCount,
		Payload:      payload,
		ArchivedAt:   sum.ArchivedAt,
	}
	err = database.RunInTx(ctx, s.db, s.logger, saveAttempts, func(tx *gorm.DB) error {
		return tx.Save(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", snap.ID, err)
	}
	return nil
}

// Load 取回完整快照
func (s *RelationalStore) Load(ctx context.Context, id string) (types.ConversationSnapshot, error) {
	if err := s.guard(); err != nil {
		return types.ConversationSnapshot{}, err
	}

	var rec conversationRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ConversationSnapshot{}, ErrNotFound
	}
	if err != nil {
		return types.ConversationSnapshot{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	var snap types.ConversationSnapshot
	if err := json.Unmarshal(rec.Payload, &snap); err != nil {
		return types.ConversationSnapshot{}, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return snap, nil
}

// List 按归档时间倒序返回清单
func (s *RelationalStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&conversationRecord{}).Order("archived_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []conversationRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summary{
			ID:           rec.ID,
			Scenario:     rec.Scenario,
			Phase:        rec.Phase,
			Reason:       rec.Reason,
			Cycles:       rec.Cycles,
			MessageCount: rec.MessageCount,
			ArchivedAt:   rec.ArchivedAt,
		})
	}
	return out, nil
}

// Delete 删除归档记录
func (s *RelationalStore) Delete(ctx context.Context, id string) error {
	if err := s.guard(); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Delete(&conversationRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping 检查数据库连通性
func (s *RelationalStore) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池，之后的调用返回 ErrStoreClosed
func (s *RelationalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
