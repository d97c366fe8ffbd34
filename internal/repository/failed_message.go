package repository

import (
	"context"
	"fmt"
	"time"

	"channel_migrator/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FailedMessageCollection 失败记录集合名称
const FailedMessageCollection = "failed_messages"

// MongoFailedMessageRepository 失败记录数据访问层（MongoDB 实现）
type MongoFailedMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoFailedMessageRepository 创建失败记录 Repository
func NewMongoFailedMessageRepository(db *mongo.Database) *MongoFailedMessageRepository {
	return &MongoFailedMessageRepository{
		collection: db.Collection(FailedMessageCollection),
	}
}

// Add 写入一条终态失败记录
func (r *MongoFailedMessageRepository) Add(ctx context.Context, record *models.FailedMessage) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to add failed message: %w", err)
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = id
	}
	return nil
}

// ListBySession 按时间倒序列出会话的失败记录
func (r *MongoFailedMessageRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.FailedMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "message_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed messages: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.FailedMessage
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode failed messages: %w", err)
	}
	return records, nil
}

// DeleteAll 删除所有失败记录
func (r *MongoFailedMessageRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete failed messages: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoFailedMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "message_id", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", FailedMessageCollection, err)
	}
	return nil
}
