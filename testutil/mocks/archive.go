// MockArchiveStore 的会话归档存储测试模拟实现。
//
// 同时满足 archive.Store 与 conversation.Archiver，内存保存全部
// 归档快照，支持按操作注入错误。
package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/convoflow/archive"
	"github.com/BaSui01/convoflow/types"
)

// MockArchiveStore 是归档存储的模拟实现
type MockArchiveStore struct {
	mu sync.RWMutex

	records    map[string]types.ConversationSnapshot
	archivedAt map[string]time.Time

	saveErr error
	loadErr error
	listErr error
	closed  bool

	saveCalls []string
}

// NewMockArchiveStore 创建归档存储模拟
func NewMockArchiveStore() *MockArchiveStore {
	return &MockArchiveStore{
		records:    make(map[string]types.ConversationSnapshot),
		archivedAt: make(map[string]time.Time),
	}
}

// WithSaveError 让 Save 返回指定错误
func (m *MockArchiveStore) WithSaveError(err error) *MockArchiveStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithLoadError 让 Load 返回指定错误
func (m *MockArchiveStore) WithLoadError(err error) *MockArchiveStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithListError 让 List 返回指定错误
func (m *MockArchiveStore) WithListError(err error) *MockArchiveStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// WithSnapshot 预置一条归档记录
func (m *MockArchiveStore) WithSnapshot(snap types.ConversationSnapshot) *MockArchiveStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[snap.ID] = snap
	m.archivedAt[snap.ID] = time.Now().UTC()
	return m
}

// Save 归档快照
func (m *MockArchiveStore) Save(ctx context.Context, snap types.ConversationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return archive.ErrStoreClosed
	}
	m.saveCalls = append(m.saveCalls, snap.ID)
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[snap.ID] = snap
	m.archivedAt[snap.ID] = time.Now().UTC()
	return nil
}

// Load 取回快照
func (m *MockArchiveStore) Load(ctx context.Context, id string) (types.ConversationSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.ConversationSnapshot{}, archive.ErrStoreClosed
	}
	if m.loadErr != nil {
		return types.ConversationSnapshot{}, m.loadErr
	}
	snap, ok := m.records[id]
	if !ok {
		return types.ConversationSnapshot{}, archive.ErrNotFound
	}
	return snap, nil
}

// List 按归档时间倒序返回清单
func (m *MockArchiveStore) List(ctx context.Context, limit int) ([]archive.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, archive.ErrStoreClosed
	}
	if m.listErr != nil {
		return nil, m.listErr
	}

	out := make([]archive.Summary, 0, len(m.records))
	for id, snap := range m.records {
		sum := archive.Summary{
			ID:           id,
			Scenario:     snap.Scenario.Name,
			Phase:        string(snap.Phase),
			Cycles:       snap.CurrentCycle,
			MessageCount: len(snap.Messages),
			ArchivedAt:   m.archivedAt[id],
		}
		if snap.Termination != nil {
			sum.Reason = snap.Termination.Reason
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ArchivedAt.After(out[j].ArchivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete 删除归档记录
func (m *MockArchiveStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return archive.ErrStoreClosed
	}
	if _, ok := m.records[id]; !ok {
		return archive.ErrNotFound
	}
	delete(m.records, id)
	delete(m.archivedAt, id)
	return nil
}

// Ping 连通性检查
func (m *MockArchiveStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return archive.ErrStoreClosed
	}
	return nil
}

// Close 关闭存储
func (m *MockArchiveStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetSaveCalls 返回 Save 被调用时的会话 ID 序列
func (m *MockArchiveStore) GetSaveCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.saveCalls...)
}

// GetSaved 返回指定 ID 已保存的快照
func (m *MockArchiveStore) GetSaved(id string) (types.ConversationSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.records[id]
	return snap, ok
}

// Reset 清空记录与注入的错误
func (m *MockArchiveStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]types.ConversationSnapshot)
	m.archivedAt = make(map[string]time.Time)
	m.saveCalls = nil
	m.saveErr, m.loadErr, m.listErr = nil, nil, nil
	m.closed = false
}
