package messaging

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogBridge acknowledges every message without sending it. It is used when
// no gateway is configured and records what would have been sent.
type LogBridge struct {
	mu   sync.Mutex
	sent []TextMessage
}

func NewLogBridge() *LogBridge {
	return &LogBridge{}
}

func (b *LogBridge) SendText(ctx context.Context, channelID string, msg TextMessage) (*Ack, error) {
	number, err := validate(channelID, msg.Recipient)
	if err != nil {
		return nil, err
	}
	if msg.Text == "" {
		return nil, ErrEmptyMessage
	}
	return b.record(ctx, channelID, TextMessage{Recipient: number, Text: msg.Text}), nil
}

func (b *LogBridge) SendMedia(ctx context.Context, channelID string, msg MediaMessage) (*Ack, error) {
	number, err := validate(channelID, msg.Recipient)
	if err != nil {
		return nil, err
	}
	if !validMediaType(msg.MediaType) {
		return nil, ErrUnsupportedMed
	}
	return b.record(ctx, channelID, TextMessage{Recipient: number, Text: msg.Caption}), nil
}

func (b *LogBridge) record(ctx context.Context, channelID string, msg TextMessage) *Ack {
	b.mu.Lock()
	b.sent = append(b.sent, msg)
	b.mu.Unlock()

	zerolog.Ctx(ctx).Info().
		Str("channel_id", channelID).
		Str("recipient", msg.Recipient).
		Int("length", len(msg.Text)).
		Msg("Message logged (no gateway configured)")

	return &Ack{MessageID: uuid.Must(uuid.NewV7()).String(), Status: "logged"}
}

// Sent returns a copy of the messages recorded so far.
func (b *LogBridge) Sent() []TextMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TextMessage(nil), b.sent...)
}
