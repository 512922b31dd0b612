package reply

import "time"

// Speaker identifies who wrote a conversation message.
type Speaker string

// Speakers.
const (
	SpeakerSelf    Speaker = "self"
	SpeakerPartner Speaker = "partner"
	SpeakerSystem  Speaker = "system"
)

// Label returns the prefix used when rendering a message into a prompt.
func (s Speaker) Label() string {
	switch s {
	case SpeakerSelf:
		return "Me"
	case SpeakerPartner:
		return "Partner"
	default:
		return "System"
	}
}

// Message is one confirmed message of a conversation session.
// Messages are immutable and append-only within a session.
type Message struct {
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// Render formats the message as a single prompt line.
func (m Message) Render() string {
	return m.Speaker.Label() + ": " + m.Content
}
