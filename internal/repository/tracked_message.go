package repository

import (
	"context"
	"fmt"
	"time"

	"channel_migrator/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TrackedMessageCollection 已投递消息集合名称
const TrackedMessageCollection = "message_tracker"

// MongoTrackedMessageRepository 已投递消息数据访问层（MongoDB 实现）
type MongoTrackedMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoTrackedMessageRepository 创建已投递消息 Repository
func NewMongoTrackedMessageRepository(db *mongo.Database) *MongoTrackedMessageRepository {
	return &MongoTrackedMessageRepository{
		collection: db.Collection(TrackedMessageCollection),
	}
}

// Track 记录一次成功投递；同一源消息重复写入视为成功
func (r *MongoTrackedMessageRepository) Track(ctx context.Context, record *models.TrackedMessage) error {
	if record.ForwardedAt.IsZero() {
		record.ForwardedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to track message: %w", err)
	}
	return nil
}

// Exists 会话内是否已有相同文件 ID 或内容摘要的投递记录
func (r *MongoTrackedMessageRepository) Exists(ctx context.Context, sessionID, fileUniqueID, contentHash string) (bool, error) {
	var or bson.A
	if fileUniqueID != "" {
		or = append(or, bson.M{"file_unique_id": fileUniqueID})
	}
	if contentHash != "" {
		or = append(or, bson.M{"content_hash": contentHash})
	}
	if len(or) == 0 {
		return false, nil
	}

	filter := bson.M{"session_id": sessionID, "$or": or}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate message: %w", err)
	}
	return count > 0, nil
}

// DeleteAll 删除所有投递记录
func (r *MongoTrackedMessageRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete tracked messages: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoTrackedMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 复合唯一索引（重放时防止重复记录）
		{
			Keys: bson.D{
				{Key: "session_id", Value: 1},
				{Key: "source_message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "file_unique_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "content_hash", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", TrackedMessageCollection, err)
	}
	return nil
}
