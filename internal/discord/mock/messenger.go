// Package mock provides test doubles for Discord message testing.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// SentMessage records one message posted through the [Messenger].
type SentMessage struct {
	ChannelID string
	Content   string

	// ReplyTo is the ID of the referenced message, or "" for plain sends.
	ReplyTo string
}

// Messenger records posted messages for test assertions. It satisfies
// the discord.Messenger interface.
type Messenger struct {
	mu sync.Mutex

	// Sent records all ChannelMessageSend and ChannelMessageSendReply calls.
	Sent []SentMessage

	// Err is returned by both send methods when non-nil, allowing error
	// injection.
	Err error
}

// ChannelMessageSend records the message and returns the configured error.
func (m *Messenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(SentMessage{ChannelID: channelID, Content: content})
}

// ChannelMessageSendReply records the reply and returns the configured error.
func (m *Messenger) ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	sm := SentMessage{ChannelID: channelID, Content: content}
	if reference != nil {
		sm.ReplyTo = reference.MessageID
	}
	return m.record(sm)
}

func (m *Messenger) record(sm SentMessage) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sm)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: sm.ChannelID, Content: sm.Content}, nil
}

// Messages returns a copy of all recorded messages.
func (m *Messenger) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}

// Last returns the most recently recorded message, or false if none.
func (m *Messenger) Last() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentMessage{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}

// Reset clears all recorded messages and errors.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
	m.Err = nil
}
