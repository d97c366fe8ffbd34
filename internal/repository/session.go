package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"channel_migrator/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionCollection 会话集合名称
const SessionCollection = "forwarding_progress"

// MongoSessionRepository 会话数据访问层（MongoDB 实现）
type MongoSessionRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoSessionRepository 创建会话 Repository
func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{
		collection: db.Collection(SessionCollection),
		now:        time.Now,
	}
}

func activeStatuses() bson.A {
	return bson.A{models.SessionStatusForwarding, models.SessionStatusPaused}
}

// Create 创建会话并回填 ID
func (r *MongoSessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := r.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	session.UpdatedAt = now
	session.ObjectID = primitive.NewObjectID()

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	session.ID = session.ObjectID.Hex()
	return nil
}

// UpdateProgress 原子更新游标、计数器与状态；游标通过 $max 保证只增不减
func (r *MongoSessionRepository) UpdateProgress(ctx context.Context, sessionID string, update models.ProgressUpdate) error {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}

	setFields := bson.M{
		"counters":   update.Counters,
		"updated_at": r.now(),
	}
	doc := bson.M{
		"$max": bson.M{"last_message_id": update.LastMessageID},
	}

	if update.Status != "" {
		setFields["status"] = update.Status
		if update.EndedAt != nil {
			setFields["ended_at"] = *update.EndedAt
		} else {
			doc["$unset"] = bson.M{"ended_at": ""}
		}
	}
	doc["$set"] = setFields

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return fmt.Errorf("failed to update session progress: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// GetByID 根据 ID 获取会话，不存在时返回 (nil, nil)
func (r *MongoSessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// GetActive 获取 forwarding / paused 状态的会话，不存在时返回 (nil, nil)
func (r *MongoSessionRepository) GetActive(ctx context.Context) (*models.Session, error) {
	filter := bson.M{"status": bson.M{"$in": activeStatuses()}}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

func (r *MongoSessionRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.Session, error) {
	var session models.Session
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.ID = session.ObjectID.Hex()
	return &session, nil
}

// List 按创建时间倒序列出会话
func (r *MongoSessionRepository) List(ctx context.Context, limit int) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	for _, session := range sessions {
		session.ID = session.ObjectID.Hex()
	}
	return sessions, nil
}

type sessionTotals struct {
	Forwarded int64 `bson:"forwarded"`
	Failed    int64 `bson:"failed"`
	Sessions  int64 `bson:"sessions"`
}

// Statistics 跨会话统计
func (r *MongoSessionRepository) Statistics(ctx context.Context) (*models.Statistics, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "forwarded", Value: bson.D{{Key: "$sum", Value: "$counters.successful"}}},
			{Key: "failed", Value: bson.D{{Key: "$sum", Value: "$counters.failed"}}},
			{Key: "sessions", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var totals sessionTotals
	if cursor.Next(ctx) {
		if err := cursor.Decode(&totals); err != nil {
			return nil, fmt.Errorf("failed to decode session statistics: %w", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session statistics: %w", err)
	}

	since := r.now().Add(-24 * time.Hour)
	recent, err := r.collection.CountDocuments(ctx, bson.M{"started_at": bson.M{"$gte": since}})
	if err != nil {
		return nil, fmt.Errorf("failed to count recent sessions: %w", err)
	}

	stats := &models.Statistics{
		TotalForwarded:      totals.Forwarded,
		TotalFailed:         totals.Failed,
		TotalSessions:       totals.Sessions,
		SessionsLast24Hours: recent,
	}
	if totals.Sessions > 0 {
		stats.AverageSuccessPerRun = float64(totals.Forwarded) / float64(totals.Sessions)
	}
	return stats, nil
}

// DeleteAll 删除所有会话
func (r *MongoSessionRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoSessionRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 活跃会话查询
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", SessionCollection, err)
	}
	return nil
}
