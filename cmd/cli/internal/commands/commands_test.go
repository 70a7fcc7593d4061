package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers the handful of routes the CLI calls.
type fakeAPI struct {
	*httptest.Server
	user      models.User
	created   service.CreateCampaignInput
	chatPolls atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	tenantID := uuid.New()
	api := &fakeAPI{user: models.User{
		UserID: uuid.New(), Email: "corretor@example.com", Name: "Corretor", Role: models.RoleManager, TenantID: &tenantID,
	}}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   api.user.UserID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	sessionID := uuid.New()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthenticated", "message": "invalid token"}})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct-horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthenticated", "message": "invalid email or password"}})
			return
		}
		writeJSON(w, http.StatusOK, service.LoginResult{Token: token, ExpiresAt: time.Now().Add(time.Hour), User: &api.user})
	})
	mux.HandleFunc("GET /api/auth/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.user)
	}))
	mux.HandleFunc("GET /api/properties", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "curitiba", r.URL.Query().Get("city"))
		writeJSON(w, http.StatusOK, map[string]any{"items": []models.Property{{
			PropertyID: uuid.New(), Title: "Casa com quintal", Type: models.PropertyTypeHouse,
			Purpose: models.PropertyPurposeSale, Price: 650000, Address: models.Address{City: "Curitiba"},
			Status: models.PropertyStatusAvailable,
		}}})
	}))
	mux.HandleFunc("POST /api/campaigns", authed(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&api.created))
		writeJSON(w, http.StatusCreated, models.Campaign{CampaignID: uuid.New(), Name: api.created.Name, Status: models.CampaignStatusScheduled})
	}))
	mux.HandleFunc("POST /api/agent/sessions", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, models.AgentSession{
			SessionID: sessionID, AgentStatus: models.AgentStatusThinking,
			Messages: []models.AgentMessage{{Role: models.MessageRoleUser, Content: "oi"}},
		})
	}))
	mux.HandleFunc("GET /api/agent/sessions/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		s := models.AgentSession{SessionID: sessionID, AgentStatus: models.AgentStatusThinking,
			Messages: []models.AgentMessage{{Role: models.MessageRoleUser, Content: "oi"}}}
		if api.chatPolls.Add(1) > 1 {
			s.AgentStatus = models.AgentStatusIdle
			s.Messages = append(s.Messages,
				models.AgentMessage{Role: models.MessageRoleAssistant, Content: `{"success":true}`, Tool: &models.ToolMetadata{Name: "search_properties", Success: true}},
				models.AgentMessage{Role: models.MessageRoleAssistant, Content: "Encontrei 3 imóveis."},
			)
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, s)
	}))

	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api
}

func loggedIn(t *testing.T, api *fakeAPI) (*Globals, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	g := &Globals{ConfigDir: t.TempDir(), Stdout: &out}
	cmd := &LoginCmd{Server: api.URL, Email: "corretor@example.com", Password: "correct-horse", Name: "default"}
	require.NoError(t, cmd.Run(context.Background(), g))
	require.Contains(t, out.String(), "Logged in as Corretor")
	out.Reset()
	return g, &out
}

func TestLoginAndWhoami(t *testing.T) {
	api := newFakeAPI(t)
	g, out := loggedIn(t, api)

	require.NoError(t, (&WhoamiCmd{}).Run(context.Background(), g))
	assert.Contains(t, out.String(), "corretor@example.com")
	assert.Contains(t, out.String(), "manager")

	out.Reset()
	require.NoError(t, (&ProfilesListCmd{}).Run(context.Background(), g))
	assert.Contains(t, out.String(), "default")
	assert.Contains(t, out.String(), "active")
}

func TestLoginPasswordFromStdin(t *testing.T) {
	api := newFakeAPI(t)
	var out bytes.Buffer
	g := &Globals{ConfigDir: t.TempDir(), Stdout: &out, Stdin: strings.NewReader("correct-horse\n")}
	require.NoError(t, (&LoginCmd{Server: api.URL, Email: "corretor@example.com", Name: "default"}).Run(context.Background(), g))

	g.Stdin = strings.NewReader("wrong\n")
	err := (&LoginCmd{Server: api.URL, Email: "corretor@example.com", Name: "other"}).Run(context.Background(), g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")
}

func TestWhoamiWithoutLogin(t *testing.T) {
	g := &Globals{ConfigDir: t.TempDir(), Stdout: &bytes.Buffer{}}
	err := (&WhoamiCmd{}).Run(context.Background(), g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imobflow login")
}

func TestPropertiesList(t *testing.T) {
	api := newFakeAPI(t)
	g, out := loggedIn(t, api)

	require.NoError(t, (&PropertiesListCmd{City: "curitiba", Limit: 10}).Run(context.Background(), g))
	assert.Contains(t, out.String(), "Casa com quintal")
	assert.Contains(t, out.String(), "650000.00")
}

func TestCampaignCreateFromYAML(t *testing.T) {
	api := newFakeAPI(t)
	g, out := loggedIn(t, api)

	path := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Lançamento Jardins
template:
  text: "Olá {{firstName}}, conheça o {{empreendimento}}"
  variables:
    empreendimento: Residencial Jardins
audience:
  filter:
    tags: [investidor]
    statuses: [lead, qualified]
schedule:
  sendImmediately: true
rateLimitMs: 1500
`), 0600))

	require.NoError(t, (&CampaignCreateCmd{Config: path}).Run(context.Background(), g))
	assert.Contains(t, out.String(), "Campaign created")

	assert.Equal(t, "Lançamento Jardins", api.created.Name)
	assert.Equal(t, "Residencial Jardins", api.created.Template.Variables["empreendimento"])
	assert.Equal(t, []string{"investidor"}, api.created.Audience.Filter.Tags)
	assert.Len(t, api.created.Audience.Filter.Statuses, 2)
	assert.True(t, api.created.Schedule.SendImmediately)
	assert.Equal(t, 1500, api.created.RateLimitMS)
}

func TestAgentChat(t *testing.T) {
	api := newFakeAPI(t)
	g, out := loggedIn(t, api)

	cmd := &AgentChatCmd{Message: []string{"quero", "uma", "casa"}, Type: "general", Timeout: 5 * time.Second, Interval: time.Millisecond}
	require.NoError(t, cmd.Run(context.Background(), g))
	assert.Contains(t, out.String(), "[search_properties: ok]")
	assert.Contains(t, out.String(), "Encontrei 3 imóveis.")
}
