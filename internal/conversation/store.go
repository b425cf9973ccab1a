package conversation

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMessage       = errors.New("invalid message")
)

type conversation struct {
	mu       sync.Mutex
	messages []Message
	summary  Summary
}

// Store keeps an append-only log per conversation. The map lock only guards
// lookup and lazy creation; appends serialize on the conversation's own lock.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*conversation),
		now:           time.Now,
	}
}

func defaultTitle(id string) string {
	return "Conversation " + id
}

func (s *Store) getOrCreate(id, title string) *conversation {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.conversations[id]; ok {
		return c
	}
	if title == "" {
		title = defaultTitle(id)
	}
	c = &conversation{summary: Summary{ConversationID: id, Title: title}}
	s.conversations[id] = c
	return c
}

func (s *Store) lookup(id string) (*conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Ensure creates the conversation if it does not exist yet. The title is only
// applied on creation.
func (s *Store) Ensure(id, title string) (Summary, error) {
	if id == "" {
		return Summary{}, ErrInvalidMessage
	}
	c := s.getOrCreate(id, title)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, nil
}

// Append stores msg at the end of its conversation, creating the conversation
// on first use, and returns the stored copy with the updated summary.
func (s *Store) Append(msg Message) (Message, Summary, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, Summary{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.Danmaku != nil {
		attrs := *msg.Danmaku
		msg.Danmaku = &attrs
	}

	c := s.getOrCreate(msg.ConversationID, "")
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	c.summary.LastMessage = msg.Content
	c.summary.LastMessageTime = msg.Timestamp
	c.summary.MessageCount = len(c.messages)
	return msg, c.summary, nil
}

// Messages returns a copy of the conversation log in insertion order.
func (s *Store) Messages(id string) ([]Message, error) {
	c, ok := s.lookup(id)
	if !ok {
		return nil, ErrConversationNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages), nil
}

func (s *Store) Summary(id string) (Summary, error) {
	c, ok := s.lookup(id)
	if !ok {
		return Summary{}, ErrConversationNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, nil
}

// Summaries lists every conversation, most recently active first.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	convs := make([]*conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		convs = append(convs, c)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(convs))
	for _, c := range convs {
		c.mu.Lock()
		out = append(out, c.summary)
		c.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if n := b.LastMessageTime.Compare(a.LastMessageTime); n != 0 {
			return n
		}
		if a.ConversationID < b.ConversationID {
			return -1
		}
		if a.ConversationID > b.ConversationID {
			return 1
		}
		return 0
	})
	return out
}
