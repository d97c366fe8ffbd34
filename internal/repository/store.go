package repository

import (
	"context"
	"fmt"

	"channel_migrator/internal/models"
	mongoclient "channel_migrator/internal/mongo"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoStore 基于 MongoDB 的进度存储
type MongoStore struct {
	client   *mongoclient.Client
	sessions SessionRepository
	failed   FailedMessageRepository
	tracked  TrackedMessageRepository
	settings SettingRepository
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore 基于数据库句柄创建存储
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		sessions: NewMongoSessionRepository(db),
		failed:   NewMongoFailedMessageRepository(db),
		tracked:  NewMongoTrackedMessageRepository(db),
		settings: NewMongoSettingRepository(db),
	}
}

// NewMongoStoreFromClient 创建存储，Close 时断开客户端
func NewMongoStoreFromClient(client *mongoclient.Client) *MongoStore {
	store := NewMongoStore(client.Database())
	store.client = client
	return store
}

// CreateSession 实现 migration.ProgressStore
func (s *MongoStore) CreateSession(ctx context.Context, session *models.Session) error {
	return s.sessions.Create(ctx, session)
}

// UpdateProgress 实现 migration.ProgressStore
func (s *MongoStore) UpdateProgress(ctx context.Context, sessionID string, update models.ProgressUpdate) error {
	return s.sessions.UpdateProgress(ctx, sessionID, update)
}

// GetSession 实现 migration.ProgressStore
func (s *MongoStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

// GetActiveSession 实现 migration.ProgressStore
func (s *MongoStore) GetActiveSession(ctx context.Context) (*models.Session, error) {
	return s.sessions.GetActive(ctx)
}

// AddFailedMessage 实现 migration.ProgressStore
func (s *MongoStore) AddFailedMessage(ctx context.Context, record *models.FailedMessage) error {
	return s.failed.Add(ctx, record)
}

// TrackMessage 实现 migration.ProgressStore
func (s *MongoStore) TrackMessage(ctx context.Context, record *models.TrackedMessage) error {
	return s.tracked.Track(ctx, record)
}

// IsDuplicate 实现 migration.ProgressStore
func (s *MongoStore) IsDuplicate(ctx context.Context, sessionID, fileUniqueID, contentHash string) (bool, error) {
	return s.tracked.Exists(ctx, sessionID, fileUniqueID, contentHash)
}

func (s *MongoStore) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	return s.sessions.List(ctx, limit)
}

func (s *MongoStore) ListFailedMessages(ctx context.Context, sessionID string, limit int) ([]*models.FailedMessage, error) {
	return s.failed.ListBySession(ctx, sessionID, limit)
}

func (s *MongoStore) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	return s.sessions.Statistics(ctx)
}

func (s *MongoStore) GetSettings(ctx context.Context) (map[string]string, error) {
	return s.settings.All(ctx)
}

func (s *MongoStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.settings.Get(ctx, key)
}

func (s *MongoStore) SetSetting(ctx context.Context, key, value string) error {
	return s.settings.Set(ctx, key, value)
}

// Reset 删除全部数据
func (s *MongoStore) Reset(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"tracked messages", s.tracked.DeleteAll},
		{"failed messages", s.failed.DeleteAll},
		{"sessions", s.sessions.DeleteAll},
		{"settings", s.settings.DeleteAll},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("reset %s: %w", step.name, err)
		}
	}
	return nil
}

// EnsureSchema 创建所有索引
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	if err := s.sessions.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := s.failed.EnsureIndexes(ctx); err != nil {
		return err
	}
	return s.tracked.EnsureIndexes(ctx)
}

// Close 断开 MongoDB 连接
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Close(ctx)
}
