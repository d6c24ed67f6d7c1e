package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/types"
)

const (
	defaultMongoDatabase = "convoflow"
	mongoCollection      = "conversations"
)

// mongoRecord Mongo 文档。快照整体 JSON 序列化进 payload，
// 清单字段提升为顶层字段供 List 投影。
type mongoRecord struct {
	ID           string    `bson:"_id"`
	Scenario     string    `bson:"scenario"`
	Phase        string    `bson:"phase"`
	Reason       string    `bson:"reason,omitempty"`
	Cycles       int       `bson:"cycles"`
	MessageCount int       `bson:"message_count"`
	Payload      []byte    `bson:"payload"`
	ArchivedAt   time.Time `bson:"archived_at"`
}

// MongoStore MongoDB 归档存储
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore 连接 MongoDB 并确认连通
func NewMongoStore(cfg config.ArchiveConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("archive backend mongo requires mongo_uri: %w", ErrInvalidInput)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}

	database := cfg.MongoDatabase
	if database == "" {
		database = defaultMongoDatabase
	}

	logger.Info("archive mongodb connected", zap.String("database", database))
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
		logger: logger.With(zap.String("component", "archive_mongo")),
	}, nil
}

// Save 以 _id 为键做 upsert
func (s *MongoStore) Save(ctx context.Context, snap types.ConversationSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot has no conversation id: %w", ErrInvalidInput)
	}

	rec, err := newMongoRecord(snap, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", snap.ID, err)
	}
	return nil
}

// Load 取回完整快照
func (s *MongoStore) Load(ctx context.Context, id string) (types.ConversationSnapshot, error) {
	var rec mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.ConversationSnapshot{}, ErrNotFound
	}
	if err != nil {
		return types.ConversationSnapshot{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return rec.decode()
}

// List 按归档时间倒序返回清单
func (s *MongoStore) List(ctx context.Context, limit int) ([]Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "archived_at", Value: -1}}).
		SetProjection(bson.M{"payload": 0})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []mongoRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to read conversation listing: %w", err)
	}

	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.summary())
	}
	return out, nil
}

// Delete 删除归档文档
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping 检查 MongoDB 连通性
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close 断开客户端
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func newMongoRecord(snap types.ConversationSnapshot, archivedAt time.Time) (mongoRecord, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return mongoRecord{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sum := summarize(snap, archivedAt)
	return mongoRecord{
		ID:           sum.ID,
		Scenario:     sum.Scenario,
		Phase:        sum.Phase,
		Reason:       sum.Reason,
		Cycles:       sum.Cycles,
		MessageCount: sum.MessageCount,
		Payload:      payload,
		ArchivedAt:   sum.ArchivedAt,
	}, nil
}

func (rec mongoRecord) summary() Summary {
	return Summary{
		ID:           rec.ID,
		Scenario:     rec.Scenario,
		Phase:        rec.Phase,
		Reason:       rec.Reason,
		Cycles:       rec.Cycles,
		MessageCount: rec.MessageCount,
		ArchivedAt:   rec.ArchivedAt,
	}
}

func (rec mongoRecord) decode() (types.ConversationSnapshot, error) {
	var snap types.ConversationSnapshot
	if err := json.Unmarshal(rec.Payload, &snap); err != nil {
		return types.ConversationSnapshot{}, fmt.Errorf("failed to decode conversation %s: %w", rec.ID, err)
	}
	return snap, nil
}
