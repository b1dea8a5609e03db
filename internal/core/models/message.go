package models

import "time"

// Role identifies who wrote a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageState tracks delivery of an optimistic user message.
type MessageState string

const (
	MessageSent    MessageState = ""
	MessagePending MessageState = "pending"
	MessageFailed  MessageState = "failed"
)

// ChatMessage is one entry of a report chat.
type ChatMessage struct {
	ID        string       `json:"id,omitempty"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	State     MessageState `json:"state,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Chat is the question/answer sub-session attached to an analysis. Messages
// are only ever appended.
type Chat struct {
	ID       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
}

// Clone returns a copy with its own message slice.
func (c Chat) Clone() Chat {
	out := c
	out.Messages = append([]ChatMessage(nil), c.Messages...)
	return out
}

// Append adds a message at the end of the chat.
func (c *Chat) Append(msg ChatMessage) {
	c.Messages = append(c.Messages, msg)
}

// SetState updates the delivery state of the message with the given id.
func (c *Chat) SetState(id string, state MessageState) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			c.Messages[i].State = state
			return true
		}
	}
	return false
}

// Pending reports whether a user message is still waiting for its answer.
func (c *Chat) Pending() bool {
	for _, m := range c.Messages {
		if m.State == MessagePending {
			return true
		}
	}
	return false
}
