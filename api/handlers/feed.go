package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/events"
)

// 单条事件的写超时，慢客户端不拖住广播消费 goroutine
const feedWriteTimeout = 5 * time.Second

// =============================================================================
// 📡 WebSocket 事件流 Handler
// =============================================================================

// FeedHandler 把 Broadcaster 的事件流接到 WebSocket 客户端。
// 每个连接一个订阅者 id，队列满时 Broadcaster 丢最旧事件，慢客户端
// 只影响自己。
type FeedHandler struct {
	broadcaster *events.Broadcaster
	logger      *zap.Logger
}

// NewFeedHandler 创建事件流处理器
func NewFeedHandler(broadcaster *events.Broadcaster, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{
		broadcaster: broadcaster,
		logger:      logger.With(zap.String("handler", "feed")),
	}
}

// HandleFeed 处理 /ws/events 升级与事件转发
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := h.logger.With(zap.String("client_id", clientID))
	logger.Info("event feed client connected", zap.String("remote_addr", r.RemoteAddr))

	var closeOnce sync.Once
	closeFeed := func() {
		closeOnce.Do(func() {
			h.broadcaster.Unsubscribe(clientID)
			cancel()
		})
	}

	h.broadcaster.Subscribe(clientID, func(e events.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			logger.Warn("failed to encode event", zap.Error(err))
			return
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, feedWriteTimeout)
		defer writeCancel()
		if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
			logger.Debug("event write failed, dropping client", zap.Error(err))
			closeFeed()
		}
	})

	// 读循环只为感知断连，客户端消息一律忽略
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	dropped := h.broadcaster.Dropped(clientID)
	closeFeed()
	conn.Close(websocket.StatusNormalClosure, "closing")
	logger.Info("event feed client disconnected", zap.Int64("dropped_events", dropped))
}
