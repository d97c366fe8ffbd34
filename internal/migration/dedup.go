package migration

import (
	"context"
	"sync"
)

// DuplicateChecker 由进度存储实现的去重查询
type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, sessionID, fileUniqueID, contentHash string) (bool, error)
}

// DuplicateFilter 会话内去重
// 以存储中的 TrackedMessage 为准；本地缓存只记录本进程内已投递的指纹，减少查询
type DuplicateFilter struct {
	store DuplicateChecker

	mu        sync.RWMutex
	sessionID string
	seen      map[string]struct{}
}

// NewDuplicateFilter 创建去重过滤器
func NewDuplicateFilter(store DuplicateChecker) *DuplicateFilter {
	return &DuplicateFilter{
		store: store,
		seen:  make(map[string]struct{}),
	}
}

// IsDuplicate 指纹是否已在本会话中投递过；没有任何标识时返回 false
func (f *DuplicateFilter) IsDuplicate(ctx context.Context, sessionID string, fp Fingerprint) (bool, error) {
	if fp.Empty() {
		return false, nil
	}

	if f.cached(sessionID, fp) {
		return true, nil
	}

	return f.store.IsDuplicate(ctx, sessionID, fp.FileUniqueID, fp.ContentHash)
}

// Remember 记录已投递的指纹（必须在 TrackedMessage 写入成功后调用）
func (f *DuplicateFilter) Remember(sessionID string, fp Fingerprint) {
	if fp.Empty() {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sessionID != sessionID {
		f.sessionID = sessionID
		f.seen = make(map[string]struct{})
	}
	if fp.FileUniqueID != "" {
		f.seen["f:"+fp.FileUniqueID] = struct{}{}
	}
	if fp.ContentHash != "" {
		f.seen["h:"+fp.ContentHash] = struct{}{}
	}
}

func (f *DuplicateFilter) cached(sessionID string, fp Fingerprint) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.sessionID != sessionID {
		return false
	}
	if fp.FileUniqueID != "" {
		if _, ok := f.seen["f:"+fp.FileUniqueID]; ok {
			return true
		}
	}
	if fp.ContentHash != "" {
		if _, ok := f.seen["h:"+fp.ContentHash]; ok {
			return true
		}
	}
	return false
}
