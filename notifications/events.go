package notifications

import "encoding/json"

// EventNewMessage is pushed to a conversation participant's channel when
// someone else sends a message.
const EventNewMessage = "new message"

// MessageEvent is the payload delivered to each other participant of a
// conversation when a message is created. Delivery is best-effort and
// at-most-once per connected client; disconnected users discover the
// message when they next open the conversation.
type MessageEvent struct {
	Type    string `json:"type"`
	ConvID  uint   `json:"conv_id"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// NewMessageEvent builds the wire payload for a new message.
func NewMessageEvent(convID uint, content, sender string) []byte {
	payload, _ := json.Marshal(MessageEvent{
		Type:    EventNewMessage,
		ConvID:  convID,
		Content: content,
		Sender:  sender,
	})
	return payload
}
