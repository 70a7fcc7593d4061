package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Token     string
	CacheDir  string
	Timeout   time.Duration
	Debug     bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// APIError is an error answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client calls the imobflow JSON API.
type Client struct {
	rc *resty.Client
}

func New(cfg Config) *Client {
	rc := resty.NewWithClient(&http.Client{
		Transport: NewCachingTransport(cfg.CacheDir),
		Timeout:   cfg.Timeout,
	})
	rc.SetBaseURL(cfg.ServerURL).
		SetHeader("Accept", "application/json").
		SetDebug(cfg.Debug)
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	return &Client{rc: rc}
}

// SetToken switches the bearer token used for later calls.
func (c *Client) SetToken(token string) {
	c.rc.SetAuthToken(token)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := c.rc.R().SetContext(ctx).SetError(&errorEnvelope{})
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.IsError() {
		apiErr := &APIError{Status: res.StatusCode()}
		if env, ok := res.Error().(*errorEnvelope); ok {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	return nil
}

type listEnvelope[T any] struct {
	Items []T `json:"items"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*service.LoginResult, error) {
	var res service.LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListProperties(ctx context.Context, query url.Values) ([]models.Property, error) {
	var res listEnvelope[models.Property]
	if err := c.do(ctx, http.MethodGet, "/api/properties", query, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) CreateCampaign(ctx context.Context, in service.CreateCampaignInput) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := c.do(ctx, http.MethodPost, "/api/campaigns", nil, in, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (c *Client) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := c.do(ctx, http.MethodGet, "/api/campaigns/"+id.String(), nil, nil, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (c *Client) ExecuteCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := c.do(ctx, http.MethodPost, "/api/campaigns/"+id.String()+"/execute", nil, nil, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

// StartSessionRequest mirrors the server's session input.
type StartSessionRequest struct {
	AgentType models.AgentType `json:"agentType,omitempty"`
	Title     string           `json:"title,omitempty"`
	Goal      string           `json:"goal"`
}

func (c *Client) StartSession(ctx context.Context, in StartSessionRequest) (*models.AgentSession, error) {
	var session models.AgentSession
	if err := c.do(ctx, http.MethodPost, "/api/agent/sessions", nil, in, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Chat(ctx context.Context, id uuid.UUID, message string) (*models.AgentSession, error) {
	var session models.AgentSession
	body := map[string]string{"message": message}
	if err := c.do(ctx, http.MethodPost, "/api/agent/sessions/"+id.String()+"/chat", nil, body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*models.AgentSession, error) {
	var session models.AgentSession
	if err := c.do(ctx, http.MethodGet, "/api/agent/sessions/"+id.String(), nil, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// WaitSession polls a session until the agent is no longer working on it.
func (c *Client) WaitSession(ctx context.Context, id uuid.UUID, interval time.Duration) (*models.AgentSession, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		session, err := c.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if !session.AgentStatus.Busy() {
			return session, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
