package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"channel_migrator/internal/models"
)

var errTransient = errors.New("connection reset by peer")

// fakeClient 内存中的源/目标频道
type fakeClient struct {
	mu sync.Mutex

	messages map[int64]*Message

	// 按调用顺序返回的错误队列，取空后正常执行
	fetchErrs   map[int64][]error
	forwardErrs map[int64][]error
	forwardErr  func(id int64) error
	reuploadErr func(id int64) error
	onFetch     func(id int64)

	fetched   []int64
	forwarded []int64
	reuploads []int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages:    make(map[int64]*Message),
		fetchErrs:   make(map[int64][]error),
		forwardErrs: make(map[int64][]error),
	}
}

func (c *fakeClient) addText(ids ...int64) {
	for _, id := range ids {
		c.messages[id] = textMessage(id, fmt.Sprintf("message %d", id))
	}
}

func textMessage(id int64, text string) *Message {
	return &Message{ID: id, Content: Content{Kind: KindText, Text: text}}
}

func fileMessage(id int64, kind ContentKind, uniqueID string, size int64) *Message {
	return &Message{ID: id, Content: Content{
		Kind: kind,
		File: &FileRef{FileID: "file-" + uniqueID, FileUniqueID: uniqueID, Size: size},
	}}
}

func popErr(queue map[int64][]error, id int64) error {
	errs := queue[id]
	if len(errs) == 0 {
		return nil
	}
	queue[id] = errs[1:]
	return errs[0]
}

func (c *fakeClient) Fetch(_ context.Context, _ ChannelRef, id int64) (*Message, error) {
	c.mu.Lock()
	c.fetched = append(c.fetched, id)
	err := popErr(c.fetchErrs, id)
	message, ok := c.messages[id]
	hook := c.onFetch
	c.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return message, nil
}

func (c *fakeClient) Forward(_ context.Context, message *Message, _ ChannelRef) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forwarded = append(c.forwarded, message.ID)
	if err := popErr(c.forwardErrs, message.ID); err != nil {
		return Receipt{}, err
	}
	if c.forwardErr != nil {
		if err := c.forwardErr(message.ID); err != nil {
			return Receipt{}, err
		}
	}
	return Receipt{TargetMessageID: 1000 + message.ID}, nil
}

func (c *fakeClient) Reupload(_ context.Context, message *Message, _ ChannelRef) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reuploads = append(c.reuploads, message.ID)
	if c.reuploadErr != nil {
		if err := c.reuploadErr(message.ID); err != nil {
			return Receipt{}, err
		}
	}
	return Receipt{TargetMessageID: 2000 + message.ID}, nil
}

func (c *fakeClient) fetchedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.fetched...)
}

func (c *fakeClient) deliveryCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forwarded) + len(c.reuploads)
}

// chunkedClient 额外支持分块传输
type chunkedClient struct {
	*fakeClient
	chunked []int64
}

func (c *chunkedClient) TransferChunked(_ context.Context, message *Message, _ ChannelRef) (Receipt, error) {
	c.chunked = append(c.chunked, message.ID)
	return Receipt{TargetMessageID: 3000 + message.ID}, nil
}

// memStore 内存进度存储
type memStore struct {
	mu sync.Mutex

	nextID   int
	sessions map[string]*models.Session
	failed   []*models.FailedMessage
	tracked  []*models.TrackedMessage
	updates  []models.ProgressUpdate

	trackErr  func(record *models.TrackedMessage) error
	updateErr func(update models.ProgressUpdate) error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*models.Session)}
}

func (s *memStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	session.ID = "session-" + strconv.Itoa(s.nextID)
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memStore) UpdateProgress(_ context.Context, sessionID string, update models.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		if err := s.updateErr(update); err != nil {
			return err
		}
	}

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if update.LastMessageID > session.LastMessageID {
		session.LastMessageID = update.LastMessageID
	}
	session.Counters = update.Counters
	if update.Status != "" {
		session.Status = update.Status
		session.EndedAt = update.EndedAt
	}
	s.updates = append(s.updates, update)
	return nil
}

func (s *memStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *memStore) GetActiveSession(_ context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if session := s.sessions[id]; session.Status.IsActive() {
			copied := *session
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) AddFailedMessage(_ context.Context, record *models.FailedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.failed = append(s.failed, &copied)
	return nil
}

func (s *memStore) TrackMessage(_ context.Context, record *models.TrackedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trackErr != nil {
		if err := s.trackErr(record); err != nil {
			return err
		}
	}
	for _, existing := range s.tracked {
		if existing.SessionID == record.SessionID && existing.SourceMessageID == record.SourceMessageID {
			return nil
		}
	}
	copied := *record
	s.tracked = append(s.tracked, &copied)
	return nil
}

func (s *memStore) IsDuplicate(_ context.Context, sessionID, fileUniqueID, contentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fileUniqueID == "" && contentHash == "" {
		return false, nil
	}
	for _, record := range s.tracked {
		if record.SessionID != sessionID {
			continue
		}
		if fileUniqueID != "" && record.FileUniqueID == fileUniqueID {
			return true, nil
		}
		if contentHash != "" && record.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) session(id string) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sessions[id]
}

func (s *memStore) trackedSources(sessionID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, record := range s.tracked {
		if record.SessionID == sessionID {
			ids = append(ids, record.SourceMessageID)
		}
	}
	return ids
}

// recordingNotifier 记录所有事件；onEvent 在记录后同步调用
type recordingNotifier struct {
	mu      sync.Mutex
	events  []Event
	onEvent func(Event)
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) {
	n.mu.Lock()
	n.events = append(n.events, event)
	hook := n.onEvent
	n.mu.Unlock()

	if hook != nil {
		hook(event)
	}
}

func (n *recordingNotifier) ofType(t EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var matched []Event
	for _, event := range n.events {
		if event.Type == t {
			matched = append(matched, event)
		}
	}
	return matched
}

// sleepRecorder 立即返回的等待函数，记录等待时长
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
