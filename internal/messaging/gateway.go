package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// GatewayConfig configures the HTTP gateway client.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("gateway base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid gateway base url: %w", err)
	}
	if c.APIKey == "" {
		return errors.New("gateway api key is required")
	}
	return nil
}

func (c *GatewayConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}

// Gateway talks to an Evolution-API compatible WhatsApp gateway. Sends are
// never retried so a message is delivered at most once.
type Gateway struct {
	client *resty.Client
}

// NewGateway creates a gateway client.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("apikey", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Gateway{client: client}, nil
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

type errorResponse struct {
	Status   int    `json:"status"`
	Error    string `json:"error"`
	Response struct {
		Message any `json:"message"`
	} `json:"response"`
}

func (g *Gateway) SendText(ctx context.Context, channelID string, msg TextMessage) (*Ack, error) {
	number, err := validate(channelID, msg.Recipient)
	if err != nil {
		return nil, err
	}
	if msg.Text == "" {
		return nil, ErrEmptyMessage
	}

	return g.send(ctx, "/message/sendText/{channel}", channelID, sendTextRequest{
		Number: number,
		Text:   msg.Text,
	})
}

func (g *Gateway) SendMedia(ctx context.Context, channelID string, msg MediaMessage) (*Ack, error) {
	number, err := validate(channelID, msg.Recipient)
	if err != nil {
		return nil, err
	}
	if !validMediaType(msg.MediaType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMed, msg.MediaType)
	}
	if msg.MediaRef == "" {
		return nil, ErrEmptyMessage
	}

	return g.send(ctx, "/message/sendMedia/{channel}", channelID, sendMediaRequest{
		Number:    number,
		MediaType: msg.MediaType,
		Media:     msg.MediaRef,
		Caption:   msg.Caption,
	})
}

func (g *Gateway) send(ctx context.Context, path, channelID string, body any) (*Ack, error) {
	var (
		result  sendResponse
		failure errorResponse
	)

	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("channel", channelID).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	if resp.IsError() {
		zerolog.Ctx(ctx).Warn().
			Int("status_code", resp.StatusCode()).
			Str("channel_id", channelID).
			Str("error", failure.Error).
			Msg("Gateway rejected message")
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode(), gatewayMessage(failure, resp))
	}

	status := result.Status
	if status == "" {
		status = "sent"
	}
	return &Ack{MessageID: result.Key.ID, Status: status}, nil
}

func gatewayMessage(f errorResponse, resp *resty.Response) string {
	if f.Response.Message != nil {
		return fmt.Sprint(f.Response.Message)
	}
	if f.Error != "" {
		return f.Error
	}
	return resp.Status()
}
