package websocket

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"vidshare-realtime/internal/conversation"
)

const (
	AssistantUserID = "assistant"
	AssistantName   = "Assistant"

	DefaultReplyDelay = time.Second
)

// ReplyCandidates is the fixed reply set for a triggering message. The first
// candidate echoes the trigger.
func ReplyCandidates(trigger string) []string {
	return []string{
		"Got your message: " + trigger,
		"Thanks for the message! We'll get back to you soon.",
		"Message received.",
		"Interesting, tell me more!",
		"Noted, thanks for sharing.",
	}
}

// Picker returns a uniform index in [0, n).
type Picker func(n int) int

var pickerSeq atomic.Uint64

// newPicker builds a generator owned by a single reply.
func newPicker() Picker {
	r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), pickerSeq.Add(1)))
	return r.IntN
}

// ReplyScheduler posts a simulated assistant reply after a fixed delay. Each
// reply runs on its own timer goroutine; once scheduled it always fires, and
// Wait only lets shutdown drain the pending ones.
type ReplyScheduler struct {
	delay     time.Duration
	post      func(ctx context.Context, msg conversation.Message) (conversation.Message, error)
	newPicker func() Picker
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	pending atomic.Int64
}

func NewReplyScheduler(delay time.Duration, post func(ctx context.Context, msg conversation.Message) (conversation.Message, error), logger *slog.Logger) *ReplyScheduler {
	return &ReplyScheduler{
		delay:     delay,
		post:      post,
		newPicker: newPicker,
		logger:    logger,
	}
}

// ScheduleReply returns immediately; the reply is appended and published to
// the conversation topic once the delay elapses. After Shutdown it drops the
// reply and returns ErrShuttingDown.
func (s *ReplyScheduler) ScheduleReply(conversationID, trigger string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("Dropping deferred reply during shutdown", "conversationID", conversationID)
		return ErrShuttingDown
	}
	s.wg.Add(1)
	s.pending.Add(1)
	s.mu.Unlock()

	time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic in deferred reply", "conversationID", conversationID, "panic", rec)
			}
		}()
		s.fire(conversationID, trigger)
	})
	return nil
}

func (s *ReplyScheduler) fire(conversationID, trigger string) {
	candidates := ReplyCandidates(trigger)
	pick := s.newPicker()

	reply := conversation.Message{
		ConversationID: conversationID,
		SenderID:       AssistantUserID,
		SenderName:     AssistantName,
		MessageType:    conversation.MessageTypeText,
		Content:        candidates[pick(len(candidates))],
	}
	stored, err := s.post(context.Background(), reply)
	if err != nil {
		s.logger.Error("Failed to post deferred reply", "conversationID", conversationID, "error", err)
		return
	}
	s.logger.Debug("Deferred reply posted", "conversationID", conversationID, "messageID", stored.ID)
}

// Pending returns the number of replies scheduled but not finished.
func (s *ReplyScheduler) Pending() int {
	return int(s.pending.Load())
}

// Shutdown stops accepting replies and waits for the scheduled ones.
func (s *ReplyScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Wait(ctx)
}

// Wait blocks until every scheduled reply has run or ctx is done.
func (s *ReplyScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
