// Package messaging sends WhatsApp messages through an outbound gateway.
package messaging

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// TextMessage is a plain text message for one recipient.
type TextMessage struct {
	Recipient string
	Text      string
}

// MediaMessage is an attachment with an optional caption.
type MediaMessage struct {
	Recipient string
	MediaType string // image, video, document, audio
	MediaRef  string // URL or base64 payload understood by the gateway
	Caption   string
}

// Ack is the gateway's delivery acknowledgement.
type Ack struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Bridge is the outbound send capability used by campaigns and agent tools.
// Failures are returned per call; callers decide whether to continue.
type Bridge interface {
	SendText(ctx context.Context, channelID string, msg TextMessage) (*Ack, error)
	SendMedia(ctx context.Context, channelID string, msg MediaMessage) (*Ack, error)
}

var (
	ErrNoChannel      = errors.New("no messaging channel configured")
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnsupportedMed = errors.New("unsupported media type")
)

// DefaultCountryCode is prefixed to national numbers.
const DefaultCountryCode = "55"

// NormalizePhone strips formatting and prefixes the Brazilian country code
// to 10 or 11 digit national numbers (area code + number).
func NormalizePhone(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	digits = strings.TrimLeft(digits, "0")

	switch n := len(digits); {
	case n == 10 || n == 11:
		return DefaultCountryCode + digits, nil
	case n >= 12 && n <= 15:
		return digits, nil
	default:
		return "", ErrInvalidPhone
	}
}

func validMediaType(t string) bool {
	switch t {
	case "image", "video", "document", "audio":
		return true
	}
	return false
}

func validate(channelID, recipient string) (string, error) {
	if channelID == "" {
		return "", ErrNoChannel
	}
	return NormalizePhone(recipient)
}
