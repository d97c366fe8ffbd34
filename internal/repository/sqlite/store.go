package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"channel_migrator/internal/models"
	"channel_migrator/internal/repository"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// 版本记录：
// 0 - 初始结构
// 1 - message_tracker 增加 content_hash 索引
const currentSchemaVersion = 1

// Store 基于 SQLite 的进度存储，单文件部署时使用
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open 打开（或创建）数据库文件并应用结构
//
// 连接配置：
//   - WAL 日志，写入期间可读
//   - synchronous=NORMAL
//   - 5 秒 busy timeout
//   - 外键约束
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite 同一时间只有一个写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// 旧库可能缺少 content_hash 索引
		if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_tracker_hash ON message_tracker(session_id, content_hash)"); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// SchemaVersion 当前数据库结构版本
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseSessionID(sessionID string) (int64, error) {
	id, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", sessionID)
	}
	return id, nil
}

// CreateSession 创建会话并回填 ID
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	session.UpdatedAt = now

	var endedAt sql.NullInt64
	if session.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: toMillis(*session.EndedAt), Valid: true}
	}

	c := session.Counters
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO forwarding_progress (
			source_ref, target_ref, start_message_id, end_message_id, last_message_id,
			successful_count, failed_count, duplicate_count, deleted_count, skipped_count, filtered_count,
			status, started_at, ended_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SourceRef, session.TargetRef, session.StartMessageID, session.EndMessageID, session.LastMessageID,
		c.Successful, c.Failed, c.Duplicate, c.Deleted, c.Skipped, c.Filtered,
		string(session.Status), toMillis(session.StartedAt), endedAt, toMillis(session.CreatedAt), toMillis(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read session id: %w", err)
	}
	session.ID = strconv.FormatInt(id, 10)
	return nil
}

// UpdateProgress 在一条语句内更新游标、计数器与状态；游标只增不减
func (s *Store) UpdateProgress(ctx context.Context, sessionID string, update models.ProgressUpdate) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}

	c := update.Counters
	query := `
		UPDATE forwarding_progress SET
			last_message_id = MAX(last_message_id, ?),
			successful_count = ?, failed_count = ?, duplicate_count = ?,
			deleted_count = ?, skipped_count = ?, filtered_count = ?,
			updated_at = ?`
	args := []any{
		update.LastMessageID,
		c.Successful, c.Failed, c.Duplicate,
		c.Deleted, c.Skipped, c.Filtered,
		toMillis(s.now()),
	}

	if update.Status != "" {
		var endedAt sql.NullInt64
		if update.EndedAt != nil {
			endedAt = sql.NullInt64{Int64: toMillis(*update.EndedAt), Valid: true}
		}
		query += ", status = ?, ended_at = ?"
		args = append(args, string(update.Status), endedAt)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session progress: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

const sessionColumns = `id, source_ref, target_ref, start_message_id, end_message_id, last_message_id,
	successful_count, failed_count, duplicate_count, deleted_count, skipped_count, filtered_count,
	status, started_at, ended_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session                         models.Session
		id                              int64
		status                          string
		startedAt, createdAt, updatedAt int64
		endedAt                         sql.NullInt64
	)
	c := &session.Counters
	err := row.Scan(
		&id, &session.SourceRef, &session.TargetRef, &session.StartMessageID, &session.EndMessageID, &session.LastMessageID,
		&c.Successful, &c.Failed, &c.Duplicate, &c.Deleted, &c.Skipped, &c.Filtered,
		&status, &startedAt, &endedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.ID = strconv.FormatInt(id, 10)
	session.Status = models.SessionStatus(status)
	session.StartedAt = fromMillis(startedAt)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		session.EndedAt = &t
	}
	return &session, nil
}

func (s *Store) querySession(ctx context.Context, query string, args ...any) (*models.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetSession 根据 ID 获取会话，不存在时返回 (nil, nil)
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return nil, nil
	}
	return s.querySession(ctx, "SELECT "+sessionColumns+" FROM forwarding_progress WHERE id = ?", id)
}

// GetActiveSession 获取 forwarding / paused 状态的会话
func (s *Store) GetActiveSession(ctx context.Context) (*models.Session, error) {
	return s.querySession(ctx,
		"SELECT "+sessionColumns+" FROM forwarding_progress WHERE status IN (?, ?) ORDER BY updated_at DESC, id DESC LIMIT 1",
		string(models.SessionStatusForwarding), string(models.SessionStatusPaused))
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM forwarding_progress ORDER BY created_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode sessions: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// AddFailedMessage 记录终态失败
func (s *Store) AddFailedMessage(ctx context.Context, record *models.FailedMessage) error {
	sessionID, err := parseSessionID(record.SessionID)
	if err != nil {
		return err
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO failed_messages (session_id, message_id, error_message, retry_count, file_size, content_type, file_unique_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, record.MessageID, record.Error, record.RetryCount, record.FileSize,
		record.ContentType, record.FileUniqueID, toMillis(record.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to add failed message: %w", err)
	}
	return nil
}

func (s *Store) ListFailedMessages(ctx context.Context, sessionID string, limit int) ([]*models.FailedMessage, error) {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	query := `SELECT message_id, error_message, retry_count, file_size, content_type, file_unique_id, timestamp
		FROM failed_messages WHERE session_id = ? ORDER BY timestamp DESC, id DESC`
	args := []any{id}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed messages: %w", err)
	}
	defer rows.Close()

	var records []*models.FailedMessage
	for rows.Next() {
		record := &models.FailedMessage{SessionID: sessionID}
		var ts int64
		if err := rows.Scan(&record.MessageID, &record.Error, &record.RetryCount, &record.FileSize,
			&record.ContentType, &record.FileUniqueID, &ts); err != nil {
			return nil, fmt.Errorf("failed to decode failed messages: %w", err)
		}
		record.Timestamp = fromMillis(ts)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query failed messages: %w", err)
	}
	return records, nil
}

// TrackMessage 记录成功投递；同一源消息重复写入视为成功
func (s *Store) TrackMessage(ctx context.Context, record *models.TrackedMessage) error {
	sessionID, err := parseSessionID(record.SessionID)
	if err != nil {
		return err
	}
	if record.ForwardedAt.IsZero() {
		record.ForwardedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_tracker (session_id, source_message_id, target_message_id, file_unique_id, content_hash, forwarded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, record.SourceMessageID, record.TargetMessageID,
		record.FileUniqueID, record.ContentHash, toMillis(record.ForwardedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to track message: %w", err)
	}
	return nil
}

// IsDuplicate 会话内是否已投递过相同文件或内容
func (s *Store) IsDuplicate(ctx context.Context, sessionID, fileUniqueID, contentHash string) (bool, error) {
	if fileUniqueID == "" && contentHash == "" {
		return false, nil
	}
	id, err := parseSessionID(sessionID)
	if err != nil {
		return false, err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM message_tracker
			WHERE session_id = ?
			  AND ((? != '' AND file_unique_id = ?) OR (? != '' AND content_hash = ?))
		)`,
		id, fileUniqueID, fileUniqueID, contentHash, contentHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return exists == 1, nil
}

// GetStatistics 跨会话统计
func (s *Store) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{}
	since := toMillis(s.now().Add(-24 * time.Hour))

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(successful_count), 0),
			COALESCE(SUM(failed_count), 0),
			COUNT(*),
			COALESCE(SUM(CASE WHEN started_at >= ? THEN 1 ELSE 0 END), 0)
		FROM forwarding_progress`, since,
	).Scan(&stats.TotalForwarded, &stats.TotalFailed, &stats.TotalSessions, &stats.SessionsLast24Hours)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session statistics: %w", err)
	}

	if stats.TotalSessions > 0 {
		stats.AverageSuccessPerRun = float64(stats.TotalForwarded) / float64(stats.TotalSessions)
	}
	return stats, nil
}

func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM bot_settings")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM bot_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// Reset 在一个事务内清空所有表
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"message_tracker", "failed_messages", "forwarding_progress", "bot_settings"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// EnsureSchema 结构在 Open 时已应用，这里只校验连接
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
