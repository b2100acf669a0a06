package ws

// EventMessagePosted is sent to every connected client after a post commits
const EventMessagePosted = "message_posted"

// Event is the only frame the notification socket sends. It carries the new
// id so clients can decide whether a fetch is needed; the message itself is
// always loaded through GET /chat.
type Event struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Author string `json:"created_by,omitempty"`
}
