package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"channel_migrator/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SettingCollection 设置集合名称
const SettingCollection = "bot_settings"

// MongoSettingRepository 设置数据访问层（MongoDB 实现）
type MongoSettingRepository struct {
	collection *mongo.Collection
}

// NewMongoSettingRepository 创建设置 Repository
func NewMongoSettingRepository(db *mongo.Database) *MongoSettingRepository {
	return &MongoSettingRepository{
		collection: db.Collection(SettingCollection),
	}
}

// Get 读取设置
func (r *MongoSettingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var setting models.Setting
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&setting)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return setting.Value, true, nil
}

// Set 写入设置（upsert）
func (r *MongoSettingRepository) Set(ctx context.Context, key, value string) error {
	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"updated_at": time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// All 读取全部设置
func (r *MongoSettingRepository) All(ctx context.Context) (map[string]string, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer cursor.Close(ctx)

	var settings []models.Setting
	if err := cursor.All(ctx, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	result := make(map[string]string, len(settings))
	for _, setting := range settings {
		result[setting.Key] = setting.Value
	}
	return result, nil
}

// DeleteAll 删除所有设置
func (r *MongoSettingRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}
