package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"vidshare-realtime/internal/models"
)

// UserDirectory resolves numeric user ids against the account store.
// Implementations return an error wrapping ErrNotFound for unknown users.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID uint64) (*models.User, error)
}

// PresenceMirror receives online/offline transitions, e.g. to publish them to
// other instances. Failures are logged and never undo the local transition.
type PresenceMirror interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type PresenceEntry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	SessionID   string    `json:"sessionId"`
	OnlineSince time.Time `json:"onlineSince"`
}

// PresenceTracker maps users to the session they are online with.
type PresenceTracker struct {
	mu        sync.RWMutex
	byUser    map[string]PresenceEntry
	bySession map[string]string

	// sessions, when set, must still hold a session for it to be bound.
	sessions  *Registry
	directory UserDirectory
	mirror    PresenceMirror
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewPresenceTracker creates a tracker. directory and mirror are optional.
func NewPresenceTracker(publisher Publisher, directory UserDirectory, mirror PresenceMirror, logger *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		byUser:    make(map[string]PresenceEntry),
		bySession: make(map[string]string),
		directory: directory,
		mirror:    mirror,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// MarkOnline records userID as online through sessionID. Re-identifying an
// online user only moves the entry to the new session; a session that was
// identified as another user releases that user first. A session that is no
// longer registered is refused.
func (p *PresenceTracker) MarkOnline(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidIdentity)
	}
	id, err := parseUserID(strings.TrimSpace(userID))
	if err != nil {
		return err
	}

	displayName := "user-" + strconv.FormatUint(id, 10)
	if p.directory != nil {
		user, err := p.directory.LookupUser(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown user %d", ErrInvalidIdentity, id)
		}
		if err != nil {
			return fmt.Errorf("lookup user %d: %w", id, err)
		}
		displayName = user.Name()
	}

	key := strconv.FormatUint(id, 10)
	var released string

	p.mu.Lock()
	// Checked under mu: Disconnect unregisters before MarkOffline takes mu.
	if p.sessions != nil {
		if _, err := p.sessions.Get(sessionID); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("%w: session %s is not connected", ErrInvalidIdentity, sessionID)
		}
	}
	if previous, ok := p.bySession[sessionID]; ok && previous != key {
		delete(p.byUser, previous)
		released = previous
	}
	entry, wasOnline := p.byUser[key]
	if wasOnline && entry.SessionID != sessionID {
		delete(p.bySession, entry.SessionID)
	}
	if !wasOnline {
		entry = PresenceEntry{UserID: key, OnlineSince: p.now()}
	}
	entry.SessionID = sessionID
	entry.DisplayName = displayName
	p.byUser[key] = entry
	p.bySession[sessionID] = key
	p.mu.Unlock()

	if released != "" {
		p.mirrorOffline(ctx, released)
	}
	if !wasOnline {
		p.logger.Info("User online", "userID", key, "sessionID", sessionID)
		if p.mirror != nil {
			if err := p.mirror.SetUserOnline(ctx, key); err != nil {
				p.logger.Error("Failed to mirror user online", "userID", key, "error", err)
			}
		}
	}
	return nil
}

// MarkOffline removes the entry bound to sessionID. It reports whether an
// entry was removed.
func (p *PresenceTracker) MarkOffline(ctx context.Context, sessionID string) bool {
	p.mu.Lock()
	userID, ok := p.bySession[sessionID]
	if ok {
		delete(p.bySession, sessionID)
		if entry, exists := p.byUser[userID]; exists && entry.SessionID == sessionID {
			delete(p.byUser, userID)
		}
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.logger.Info("User offline", "userID", userID, "sessionID", sessionID)
	p.mirrorOffline(ctx, userID)
	return true
}

func (p *PresenceTracker) mirrorOffline(ctx context.Context, userID string) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.SetUserOffline(ctx, userID); err != nil {
		p.logger.Error("Failed to mirror user offline", "userID", userID, "error", err)
	}
}

func (p *PresenceTracker) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// Entry returns the presence entry for userID.
func (p *PresenceTracker) Entry(userID string) (PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.byUser[userID]
	return entry, ok
}

// UserForSession returns the entry of the user identified on sessionID.
func (p *PresenceTracker) UserForSession(sessionID string) (PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.bySession[sessionID]
	if !ok {
		return PresenceEntry{}, false
	}
	entry, ok := p.byUser[userID]
	return entry, ok
}

// BroadcastOnlineCount pushes the current count to the presence topic.
func (p *PresenceTracker) BroadcastOnlineCount(ctx context.Context) PublishResult {
	return p.publisher.Publish(ctx, PresenceTopic, NewOnlineCountFrame(p.OnlineCount(), p.now()))
}
