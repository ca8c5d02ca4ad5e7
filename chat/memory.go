package chat

import (
	"sync"
	"time"

	"github.com/avelis/ragchat/llm"
)

// maxMessages caps stored history per conversation. Appending past the
// cap drops the oldest entries.
const maxMessages = 20

// StoredMessage is one history entry. Assistant entries carry the mode
// and citations of the turn that produced them.
type StoredMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode,omitempty"`
	Sources   []Source  `json:"sources,omitempty"`
}

// Conversation is a bounded message history.
type Conversation struct {
	ID        string          `json:"id"`
	Messages  []StoredMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
}

// Memory holds all conversations in process. Nothing is persisted;
// restarting the server starts everyone fresh.
type Memory struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

// NewMemory returns an empty conversation store.
func NewMemory() *Memory {
	return &Memory{convs: make(map[string]*Conversation)}
}

// AppendUser records a user message, creating the conversation on
// first use.
func (m *Memory) AppendUser(conversationID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.convs[conversationID]
	if conv == nil {
		conv = &Conversation{ID: conversationID, CreatedAt: time.Now()}
		m.convs[conversationID] = conv
	}
	conv.Messages = append(conv.Messages, StoredMessage{
		Role:      "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

// AppendAssistant records the assistant's answer for a turn and trims
// the conversation to the retention cap.
func (m *Memory) AppendAssistant(conversationID, content, mode string, sources []Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.convs[conversationID]
	if conv == nil {
		conv = &Conversation{ID: conversationID, CreatedAt: time.Now()}
		m.convs[conversationID] = conv
	}
	conv.Messages = append(conv.Messages, StoredMessage{
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Now(),
		Mode:      mode,
		Sources:   sources,
	})
	if len(conv.Messages) > maxMessages {
		conv.Messages = append([]StoredMessage(nil), conv.Messages[len(conv.Messages)-maxMessages:]...)
	}
}

// RemoveLast drops the most recent message of a conversation. Used to
// unwind the user append when a turn is cancelled before completing.
func (m *Memory) RemoveLast(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.convs[conversationID]
	if conv == nil || len(conv.Messages) == 0 {
		return
	}
	conv.Messages = conv.Messages[:len(conv.Messages)-1]
}

// LastN returns the most recent n messages as prompt messages, oldest
// first. n <= 0 returns everything retained.
func (m *Memory) LastN(conversationID string, n int) []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv := m.convs[conversationID]
	if conv == nil {
		return nil
	}
	msgs := conv.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]llm.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// Get returns a copy of a conversation.
func (m *Memory) Get(conversationID string) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv := m.convs[conversationID]
	if conv == nil {
		return nil, false
	}
	out := &Conversation{
		ID:        conv.ID,
		CreatedAt: conv.CreatedAt,
		Messages:  append([]StoredMessage(nil), conv.Messages...),
	}
	return out, true
}

// Delete removes a conversation. Returns false when it does not exist.
func (m *Memory) Delete(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.convs[conversationID]; !ok {
		return false
	}
	delete(m.convs, conversationID)
	return true
}

// Clear removes every conversation.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = make(map[string]*Conversation)
}

// Count returns the number of live conversations.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convs)
}
