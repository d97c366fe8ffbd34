package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"channel_migrator/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoTrackedMessageRepositoryTrack(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoTrackedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		record := &models.TrackedMessage{SessionID: "s1", SourceMessageID: 10, TargetMessageID: 900, FileUniqueID: "AQAD"}
		if err := repo.Track(context.Background(), record); err != nil {
			t.Fatalf("Track failed: %v", err)
		}
		if record.ForwardedAt.IsZero() {
			t.Fatalf("expected forwarded_at to be set")
		}
	})

	mt.Run("duplicate key is success", func(mt *mtest.T) {
		repo := &MongoTrackedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := repo.Track(context.Background(), &models.TrackedMessage{SessionID: "s1", SourceMessageID: 10})
		if err != nil {
			t.Fatalf("duplicate insert should be ignored, got %v", err)
		}
	})

	mt.Run("insert error", func(mt *mtest.T) {
		repo := &MongoTrackedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := repo.Track(context.Background(), &models.TrackedMessage{SessionID: "s1", SourceMessageID: 11})
		if err == nil || !strings.Contains(err.Error(), "failed to track message") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoTrackedMessageRepositoryExists(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("match", func(mt *mtest.T) {
		repo := &MongoTrackedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "n", Value: int64(1)},
		}))

		exists, err := repo.Exists(context.Background(), "s1", "AQAD", "")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if !exists {
			t.Fatalf("expected duplicate")
		}
	})

	mt.Run("no match", func(mt *mtest.T) {
		repo := &MongoTrackedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		exists, err := repo.Exists(context.Background(), "s1", "", "5d41402abc4b2a76b9719d911017c592")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists {
			t.Fatalf("expected no duplicate")
		}
	})

	mt.Run("no identifiers skips query", func(mt *mtest.T) {
		repo := &MongoTrackedMessageRepository{collection: mt.Coll}

		exists, err := repo.Exists(context.Background(), "s1", "", "")
		if err != nil || exists {
			t.Fatalf("expected false without error, got %v, %v", exists, err)
		}
	})
}

func TestMongoFailedMessageRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now().UTC().Truncate(time.Millisecond)

	mt.Run("add", func(mt *mtest.T) {
		repo := &MongoFailedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		record := &models.FailedMessage{SessionID: "s1", MessageID: 77, Error: "file too large", RetryCount: 0}
		if err := repo.Add(context.Background(), record); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if record.ID.IsZero() {
			t.Fatalf("expected inserted id")
		}
		if record.Timestamp.IsZero() {
			t.Fatalf("expected timestamp to be set")
		}
	})

	mt.Run("list", func(mt *mtest.T) {
		repo := &MongoFailedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{
				{Key: "session_id", Value: "s1"},
				{Key: "message_id", Value: int64(78)},
				{Key: "error_message", Value: "connection reset"},
				{Key: "retry_count", Value: int32(3)},
				{Key: "content_type", Value: "video"},
				{Key: "timestamp", Value: now},
			},
			bson.D{
				{Key: "session_id", Value: "s1"},
				{Key: "message_id", Value: int64(77)},
				{Key: "error_message", Value: "file too large"},
				{Key: "retry_count", Value: int32(0)},
				{Key: "file_size", Value: int64(2_200_000_000)},
				{Key: "timestamp", Value: now},
			},
		))

		records, err := repo.ListBySession(context.Background(), "s1", 10)
		if err != nil {
			t.Fatalf("ListBySession failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("unexpected count: %d", len(records))
		}
		if records[0].MessageID != 78 || records[0].RetryCount != 3 || records[0].Error != "connection reset" {
			t.Fatalf("unexpected record: %+v", records[0])
		}
		if records[1].FileSize != 2_200_000_000 {
			t.Fatalf("unexpected file size: %d", records[1].FileSize)
		}
	})

	mt.Run("list error", func(mt *mtest.T) {
		repo := &MongoFailedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		_, err := repo.ListBySession(context.Background(), "s1", 10)
		if err == nil || !strings.Contains(err.Error(), "failed to query failed messages") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoSettingRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("set", func(mt *mtest.T) {
		repo := &MongoSettingRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		if err := repo.Set(context.Background(), models.SettingDelay, "2"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	})

	mt.Run("get", func(mt *mtest.T) {
		repo := &MongoSettingRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: models.SettingDelay},
			{Key: "value", Value: "2"},
		}))

		value, ok, err := repo.Get(context.Background(), models.SettingDelay)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !ok || value != "2" {
			t.Fatalf("unexpected value: %q ok=%v", value, ok)
		}
	})

	mt.Run("get missing", func(mt *mtest.T) {
		repo := &MongoSettingRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, ok, err := repo.Get(context.Background(), models.SettingDelay)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if ok {
			t.Fatalf("expected missing setting")
		}
	})

	mt.Run("all", func(mt *mtest.T) {
		repo := &MongoSettingRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: models.SettingSourceChannel}, {Key: "value", Value: "@old"}},
			bson.D{{Key: "_id", Value: models.SettingMaxRetries}, {Key: "value", Value: "5"}},
		))

		settings, err := repo.All(context.Background())
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		if len(settings) != 2 || settings[models.SettingSourceChannel] != "@old" || settings[models.SettingMaxRetries] != "5" {
			t.Fatalf("unexpected settings: %v", settings)
		}
	})
}

func TestMongoStoreReset(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("deletes every collection", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 10}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 4}),
		)

		if err := store.Reset(context.Background()); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
	})

	mt.Run("stops on first error", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))

		err := store.Reset(context.Background())
		if err == nil || !strings.Contains(err.Error(), "reset tracked messages") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
