package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"channel_migrator/internal/logger"
	"channel_migrator/internal/models"
)

// Options 引擎级参数；延迟、重试次数与限流开关来自每次运行的 RunSettings
type Options struct {
	CheckpointInterval       int
	ConsecutiveNotFoundLimit int
	Retry                    RetryConfig
	Governor                 GovernorConfig
	Delivery                 DeliveryConfig
	SkipKinds                []ContentKind
}

// DefaultOptions 默认引擎参数
func DefaultOptions() Options {
	return Options{
		CheckpointInterval:       10,
		ConsecutiveNotFoundLimit: 5,
		Retry:                    DefaultRetryConfig(3),
		Governor:                 DefaultGovernorConfig(),
		Delivery:                 DefaultDeliveryConfig(),
	}
}

// EngineOption 引擎可选项
type EngineOption func(*Engine)

// WithClock 替换时钟
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleep 替换等待函数（限流、退避与消息间延迟共用）
func WithSleep(sleep SleepFunc) EngineOption {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

const (
	stopNone int32 = iota
	stopPause
	stopCancel
)

// RunRequest 一次运行请求；ResumeSessionID 非空时忽略 Settings 中的频道与起止 ID
type RunRequest struct {
	Settings        RunSettings
	ResumeSessionID string
}

// Outcome 运行结束时的会话状态
type Outcome struct {
	SessionID     string
	Status        models.SessionStatus
	Counters      models.Counters
	LastMessageID int64
	Reason        string
}

// Engine 转发引擎：按 ID 顺序遍历源频道，逐条投递并持久化进度
// 每个进程只持有一个 Engine，同一时间只运行一个会话
type Engine struct {
	client   RemoteClient
	store    ProgressStore
	notifier Notifier
	opts     Options
	now      func() time.Time
	sleep    SleepFunc
	dedup    *DuplicateFilter

	running   atomic.Bool
	stopReq   atomic.Int32
	governor  atomic.Pointer[FloodGovernor]
	mu        sync.Mutex
	cancelRun context.CancelFunc

	live liveCounters
}

// NewEngine 创建引擎；notifier 可为 nil
func NewEngine(client RemoteClient, store ProgressStore, notifier Notifier, opts Options, options ...EngineOption) *Engine {
	if opts.CheckpointInterval < 1 {
		opts.CheckpointInterval = 1
	}

	e := &Engine{
		client:   client,
		store:    store,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		sleep:    SleepContext,
		dedup:    NewDuplicateFilter(store),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// run 单次运行的状态
type run struct {
	session  *models.Session
	source   ChannelRef
	target   ChannelRef
	settings RunSettings
	governor *FloodGovernor
	policy   *RetryPolicy
	selector *Selector
}

type messageResult int

const (
	resultSuccessful messageResult = iota
	resultFailed
	resultDuplicate
	resultDeleted
	resultSkipped
	resultFiltered
)

// paced 该结果之后是否需要消息间延迟
func (r messageResult) paced() bool {
	return r == resultSuccessful || r == resultFailed
}

// IsRunning 是否有会话正在运行
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Pause 请求暂停，当前消息处理完（或等待被打断）后停止
func (e *Engine) Pause() bool {
	return e.requestStop(stopPause)
}

// Cancel 请求取消，会话以 cancelled 结束
func (e *Engine) Cancel() bool {
	return e.requestStop(stopCancel)
}

func (e *Engine) requestStop(kind int32) bool {
	if !e.running.Load() {
		return false
	}

	if kind == stopCancel {
		e.stopReq.Store(stopCancel)
	} else {
		e.stopReq.CompareAndSwap(stopNone, kind)
	}

	e.mu.Lock()
	if e.cancelRun != nil {
		e.cancelRun()
	}
	e.mu.Unlock()
	return true
}

// Snapshot 当前运行状态（只读原子值）
func (e *Engine) Snapshot() Snapshot {
	snap := e.live.snapshot(e.now())
	snap.Running = e.running.Load()
	if g := e.governor.Load(); g != nil {
		snap.FloodDelay = g.CurrentDelay()
		snap.RateLimitCount = g.RateLimitCount()
	}
	return snap
}

// Run 运行（或恢复）一个会话，直到完成、暂停、取消或出现会话级错误
//
// ctx 被取消时会话以 interrupted 结束；会话级错误（平台拒绝、存储不可用）作为 error 返回
func (e *Engine) Run(ctx context.Context, req RunRequest) (Outcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyRunning
	}
	defer func() {
		e.stopReq.Store(stopNone)
		e.running.Store(false)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancelRun = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelRun = nil
		e.mu.Unlock()
	}()

	// 存储写入不受暂停/取消影响，保证最后一次落盘
	storeCtx := context.WithoutCancel(ctx)

	session, resumed, err := e.openSession(storeCtx, req)
	if err != nil {
		return Outcome{}, err
	}

	r := e.newRun(session, req.Settings)
	e.live.reset(session, e.now())

	log := logger.WithSession(session.ID)
	if resumed {
		log.Infof("Resuming session from message %d (%s -> %s)", session.NextMessageID(), r.source, r.target)
	} else {
		log.Infof("Session started at message %d (%s -> %s)", session.StartMessageID, r.source, r.target)
	}

	e.notify(storeCtx, Event{
		Type:          EventSessionStarted,
		SessionID:     session.ID,
		Source:        r.source,
		Target:        r.target,
		Status:        models.SessionStatusForwarding,
		Counters:      session.Counters,
		LastMessageID: session.LastMessageID,
		EndMessageID:  session.EndMessageID,
		Resumed:       resumed,
	})

	return e.loop(runCtx, storeCtx, r)
}

func (e *Engine) newRun(session *models.Session, settings RunSettings) *run {
	govCfg := e.opts.Governor
	govCfg.Enabled = settings.FloodProtect
	governor := NewFloodGovernor(govCfg, e.now, e.sleep)
	e.governor.Store(governor)

	retryCfg := e.opts.Retry
	retryCfg.MaxRetries = settings.MaxRetries
	policy := NewRetryPolicy(retryCfg, governor, e.sleep)

	return &run{
		session:  session,
		source:   ChannelRef(session.SourceRef),
		target:   ChannelRef(session.TargetRef),
		settings: settings,
		governor: governor,
		policy:   policy,
		selector: NewSelector(e.client, policy, e.opts.Delivery),
	}
}

// openSession 创建新会话或加载待恢复的会话，并将其状态置为 forwarding
func (e *Engine) openSession(ctx context.Context, req RunRequest) (*models.Session, bool, error) {
	active, err := e.store.GetActiveSession(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get active session: %w", ErrStoreUnavailable, err)
	}

	if req.ResumeSessionID == "" {
		if err := req.Settings.Validate(); err != nil {
			return nil, false, err
		}
		if active != nil {
			return nil, false, fmt.Errorf("%w: %s is %s", ErrActiveSession, active.ID, active.Status)
		}

		now := e.now()
		session := &models.Session{
			SourceRef:      string(req.Settings.Source),
			TargetRef:      string(req.Settings.Target),
			StartMessageID: req.Settings.StartMessageID,
			EndMessageID:   req.Settings.EndMessageID,
			LastMessageID:  req.Settings.StartMessageID - 1,
			Status:         models.SessionStatusForwarding,
			StartedAt:      now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.store.CreateSession(ctx, session); err != nil {
			return nil, false, fmt.Errorf("%w: create session: %w", ErrStoreUnavailable, err)
		}
		return session, false, nil
	}

	session, err := e.store.GetSession(ctx, req.ResumeSessionID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get session: %w", ErrStoreUnavailable, err)
	}
	if session == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrSessionNotFound, req.ResumeSessionID)
	}
	if session.Status.IsFinal() {
		return nil, false, fmt.Errorf("%w: %s is %s", ErrSessionNotResumable, session.ID, session.Status)
	}
	if active != nil && active.ID != session.ID {
		return nil, false, fmt.Errorf("%w: %s is %s", ErrActiveSession, active.ID, active.Status)
	}

	update := models.ProgressUpdate{
		LastMessageID: session.LastMessageID,
		Counters:      session.Counters,
		Status:        models.SessionStatusForwarding,
	}
	if err := e.store.UpdateProgress(ctx, session.ID, update); err != nil {
		return nil, false, fmt.Errorf("%w: resume session: %w", ErrStoreUnavailable, err)
	}
	session.Status = models.SessionStatusForwarding
	session.EndedAt = nil
	return session, true, nil
}

func (e *Engine) loop(runCtx, storeCtx context.Context, r *run) (Outcome, error) {
	current := r.session.NextMessageID()
	notFoundRun := 0
	sinceCheckpoint := 0

	for {
		if status, stopped := e.stopStatus(runCtx); stopped {
			return e.finish(storeCtx, r, status, "")
		}
		if r.session.HasEnd() && current > r.session.EndMessageID {
			return e.finish(storeCtx, r, models.SessionStatusCompleted, "")
		}

		e.live.currentID.Store(current)
		result, err := e.processMessage(runCtx, storeCtx, r, current)
		if err != nil {
			switch {
			case errors.Is(err, ErrStoreUnavailable):
				return e.abortOnStore(storeCtx, r, err)
			case IsFatal(err):
				return e.abortFatal(storeCtx, r, current, err)
			default:
				// 停止：当前消息没有结果，游标不前进
				status, stopped := e.stopStatus(runCtx)
				if !stopped {
					status = models.SessionStatusInterrupted
				}
				return e.finish(storeCtx, r, status, "")
			}
		}

		e.live.cursor.Store(current)
		sinceCheckpoint++

		if result == resultDeleted {
			notFoundRun++
		} else {
			notFoundRun = 0
		}
		if limit := e.opts.ConsecutiveNotFoundLimit; limit > 0 && notFoundRun >= limit {
			reason := fmt.Sprintf("%d consecutive messages not found (last id %d)", notFoundRun, current)
			logger.WithSession(r.session.ID).Warn(reason)
			return e.finish(storeCtx, r, models.SessionStatusFailed, reason)
		}

		if sinceCheckpoint >= e.opts.CheckpointInterval {
			if err := e.checkpoint(storeCtx, r); err != nil {
				return e.abortOnStore(storeCtx, r, err)
			}
			sinceCheckpoint = 0
		}

		current++

		if result.paced() {
			// 等待被打断时由循环顶部处理停止
			_ = r.governor.Pace(runCtx, r.settings.Delay)
		}
	}
}

// processMessage 处理单条消息；返回 error 时该消息没有持久化结果
func (e *Engine) processMessage(runCtx, storeCtx context.Context, r *run, id int64) (messageResult, error) {
	log := logger.WithMessage(r.session.ID, id)

	message, retries, err := Execute(runCtx, r.policy, fmt.Sprintf("fetch message %d", id), func(callCtx context.Context) (*Message, error) {
		return e.client.Fetch(callCtx, r.source, id)
	})
	if err != nil {
		switch Classify(err) {
		case ClassNotFound:
			e.live.deleted.Add(1)
			log.Debug("Message not found, counted as deleted")
			return resultDeleted, nil
		case ClassStopped, ClassFatal:
			return 0, err
		}
		if serr := e.recordFailure(storeCtx, r, id, nil, retries, err); serr != nil {
			return 0, serr
		}
		return resultFailed, nil
	}

	if e.skipKind(message.Kind()) {
		e.live.filtered.Add(1)
		log.Debugf("Message of kind %s filtered", message.Kind())
		return resultFiltered, nil
	}

	fp := FingerprintOf(message)
	duplicate, err := e.dedup.IsDuplicate(storeCtx, r.session.ID, fp)
	if err != nil {
		return 0, fmt.Errorf("%w: duplicate check for message %d: %w", ErrStoreUnavailable, id, err)
	}
	if duplicate {
		e.live.duplicate.Add(1)
		log.Debug("Duplicate message skipped")
		return resultDuplicate, nil
	}

	outcome, err := r.selector.Deliver(runCtx, message, r.target)
	if err != nil {
		switch Classify(err) {
		case ClassStopped, ClassFatal:
			return 0, err
		}
		if errors.Is(err, ErrUnsupportedContent) {
			e.live.skipped.Add(1)
			log.Warnf("Message skipped: %v", err)
			return resultSkipped, nil
		}

		var deliveryErr *DeliveryError
		retries := 0
		if errors.As(err, &deliveryErr) {
			retries = deliveryErr.Retries()
		}
		if serr := e.recordFailure(storeCtx, r, id, message, retries, err); serr != nil {
			return 0, serr
		}
		return resultFailed, nil
	}

	record := &models.TrackedMessage{
		SessionID:       r.session.ID,
		SourceMessageID: id,
		TargetMessageID: outcome.Receipt.TargetMessageID,
		FileUniqueID:    fp.FileUniqueID,
		ContentHash:     fp.ContentHash,
		ForwardedAt:     e.now(),
	}
	if err := e.store.TrackMessage(storeCtx, record); err != nil {
		return 0, fmt.Errorf("%w: track message %d: %w", ErrStoreUnavailable, id, err)
	}
	e.dedup.Remember(r.session.ID, fp)
	e.live.successful.Add(1)

	log.Debugf("Delivered via %s as %d (retries=%d)", outcome.Strategy, outcome.Receipt.TargetMessageID, outcome.Retries)
	return resultSuccessful, nil
}

func (e *Engine) recordFailure(ctx context.Context, r *run, id int64, message *Message, retries int, cause error) error {
	record := &models.FailedMessage{
		SessionID:  r.session.ID,
		MessageID:  id,
		Error:      cause.Error(),
		RetryCount: retries,
		Timestamp:  e.now(),
	}
	if message != nil {
		record.FileSize = message.FileSize()
		record.ContentType = string(message.Kind())
		record.FileUniqueID = message.FileUniqueID()
	}

	if err := e.store.AddFailedMessage(ctx, record); err != nil {
		return fmt.Errorf("%w: record failed message %d: %w", ErrStoreUnavailable, id, err)
	}
	e.live.failed.Add(1)
	logger.WithMessage(r.session.ID, id).Errorf("Message failed after %d retries: %v", retries, cause)
	return nil
}

func (e *Engine) skipKind(kind ContentKind) bool {
	for _, skip := range e.opts.SkipKinds {
		if skip == kind {
			return true
		}
	}
	return false
}

func (e *Engine) stopStatus(runCtx context.Context) (models.SessionStatus, bool) {
	switch e.stopReq.Load() {
	case stopPause:
		return models.SessionStatusPaused, true
	case stopCancel:
		return models.SessionStatusCancelled, true
	}
	if runCtx.Err() != nil {
		return models.SessionStatusInterrupted, true
	}
	return "", false
}

func (e *Engine) progressUpdate(status models.SessionStatus) models.ProgressUpdate {
	update := models.ProgressUpdate{
		LastMessageID: e.live.cursor.Load(),
		Counters:      e.live.counters(),
		Status:        status,
	}
	if status.HasEndTime() {
		endedAt := e.now()
		update.EndedAt = &endedAt
	}
	return update
}

func (e *Engine) outcome(r *run, status models.SessionStatus, reason string) Outcome {
	return Outcome{
		SessionID:     r.session.ID,
		Status:        status,
		Counters:      e.live.counters(),
		LastMessageID: e.live.cursor.Load(),
		Reason:        reason,
	}
}

func (e *Engine) checkpoint(ctx context.Context, r *run) error {
	update := e.progressUpdate("")
	if err := e.store.UpdateProgress(ctx, r.session.ID, update); err != nil {
		return fmt.Errorf("%w: checkpoint: %w", ErrStoreUnavailable, err)
	}

	e.notify(ctx, Event{
		Type:          EventProgressCheckpoint,
		SessionID:     r.session.ID,
		Source:        r.source,
		Target:        r.target,
		Status:        models.SessionStatusForwarding,
		Counters:      update.Counters,
		LastMessageID: update.LastMessageID,
		EndMessageID:  r.session.EndMessageID,
	})
	return nil
}

// finish 最后一次落盘并发送结束事件
func (e *Engine) finish(ctx context.Context, r *run, status models.SessionStatus, reason string) (Outcome, error) {
	update := e.progressUpdate(status)
	e.live.setStatus(status)
	outcome := e.outcome(r, status, reason)
	log := logger.WithSession(r.session.ID)

	if err := e.store.UpdateProgress(ctx, r.session.ID, update); err != nil {
		err = fmt.Errorf("%w: final flush: %w", ErrStoreUnavailable, err)
		log.Errorf("Failed to persist final status %s: %v", status, err)
		e.notifyCritical(ctx, r, err.Error())
		return outcome, err
	}

	log.Infof("Session ended: status=%s, last_message_id=%d, successful=%d, failed=%d, duplicate=%d, deleted=%d, skipped=%d, filtered=%d",
		status, outcome.LastMessageID, outcome.Counters.Successful, outcome.Counters.Failed, outcome.Counters.Duplicate,
		outcome.Counters.Deleted, outcome.Counters.Skipped, outcome.Counters.Filtered)

	e.notify(ctx, Event{
		Type:          EventSessionEnded,
		SessionID:     r.session.ID,
		Source:        r.source,
		Target:        r.target,
		Status:        status,
		Counters:      outcome.Counters,
		LastMessageID: outcome.LastMessageID,
		EndMessageID:  r.session.EndMessageID,
		Description:   reason,
	})
	return outcome, nil
}

// abortFatal 平台拒绝：会话以 failed 结束，不再处理任何消息
func (e *Engine) abortFatal(ctx context.Context, r *run, id int64, cause error) (Outcome, error) {
	logger.WithMessage(r.session.ID, id).Errorf("Session aborted by permanent error: %v", cause)
	e.notifyCritical(ctx, r, fmt.Sprintf("message %d: %v", id, cause))

	outcome, err := e.finish(ctx, r, models.SessionStatusFailed, cause.Error())
	if err != nil {
		return outcome, errors.Join(cause, err)
	}
	return outcome, fmt.Errorf("session %s aborted at message %d: %w", r.session.ID, id, cause)
}

// abortOnStore 存储不可用：尽力记录 interrupted 后返回
func (e *Engine) abortOnStore(ctx context.Context, r *run, cause error) (Outcome, error) {
	log := logger.WithSession(r.session.ID)
	log.Errorf("Progress store unavailable, stopping: %v", cause)
	e.notifyCritical(ctx, r, cause.Error())

	status := models.SessionStatusInterrupted
	e.live.setStatus(status)
	if err := e.store.UpdateProgress(ctx, r.session.ID, e.progressUpdate(status)); err != nil {
		log.Warnf("Failed to mark session interrupted: %v", err)
	}
	return e.outcome(r, status, cause.Error()), cause
}

// CancelSession 取消一个未在运行的 paused / interrupted 会话；正在运行时等同于 Cancel
func (e *Engine) CancelSession(ctx context.Context, sessionID string) error {
	if e.running.Load() && e.Snapshot().SessionID == sessionID {
		e.Cancel()
		return nil
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: get session: %w", ErrStoreUnavailable, err)
	}
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status.IsFinal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionNotResumable, session.ID, session.Status)
	}

	endedAt := e.now()
	update := models.ProgressUpdate{
		LastMessageID: session.LastMessageID,
		Counters:      session.Counters,
		Status:        models.SessionStatusCancelled,
		EndedAt:       &endedAt,
	}
	if err := e.store.UpdateProgress(ctx, session.ID, update); err != nil {
		return fmt.Errorf("%w: cancel session: %w", ErrStoreUnavailable, err)
	}

	logger.WithSession(session.ID).Infof("Session cancelled (was %s)", session.Status)
	e.notify(ctx, Event{
		Type:          EventSessionEnded,
		SessionID:     session.ID,
		Source:        ChannelRef(session.SourceRef),
		Target:        ChannelRef(session.TargetRef),
		Status:        models.SessionStatusCancelled,
		Counters:      session.Counters,
		LastMessageID: session.LastMessageID,
		EndMessageID:  session.EndMessageID,
	})
	return nil
}

// Recover 启动时检查崩溃遗留的 forwarding 会话，标记为 interrupted 以便恢复
func (e *Engine) Recover(ctx context.Context) (*models.Session, error) {
	if e.running.Load() {
		return nil, nil
	}

	session, err := e.store.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get active session: %w", ErrStoreUnavailable, err)
	}
	if session == nil || session.Status != models.SessionStatusForwarding {
		return nil, nil
	}

	update := models.ProgressUpdate{
		LastMessageID: session.LastMessageID,
		Counters:      session.Counters,
		Status:        models.SessionStatusInterrupted,
	}
	if err := e.store.UpdateProgress(ctx, session.ID, update); err != nil {
		return nil, fmt.Errorf("%w: recover session: %w", ErrStoreUnavailable, err)
	}
	session.Status = models.SessionStatusInterrupted

	logger.WithSession(session.ID).Warnf("Recovered stale session at message %d", session.LastMessageID)
	e.notify(ctx, Event{
		Type:          EventSessionRecovered,
		SessionID:     session.ID,
		Source:        ChannelRef(session.SourceRef),
		Target:        ChannelRef(session.TargetRef),
		Status:        session.Status,
		Counters:      session.Counters,
		LastMessageID: session.LastMessageID,
		EndMessageID:  session.EndMessageID,
	})
	return session, nil
}

func (e *Engine) notifyCritical(ctx context.Context, r *run, description string) {
	e.notify(ctx, Event{
		Type:          EventCriticalError,
		SessionID:     r.session.ID,
		Source:        r.source,
		Target:        r.target,
		Counters:      e.live.counters(),
		LastMessageID: e.live.cursor.Load(),
		Description:   description,
	})
}

func (e *Engine) notify(ctx context.Context, event Event) {
	if e.notifier == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = e.now()
	}
	e.notifier.Notify(ctx, event)
}
