package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/imobflow/imobflow/internal/agent"
	"github.com/imobflow/imobflow/internal/agent/tools"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/campaign"
	"github.com/imobflow/imobflow/internal/messaging"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/imobflow/imobflow/internal/store/memory"
	"github.com/imobflow/imobflow/internal/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	pool   *worker.Pool
	bridge *messaging.LogBridge
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)

	users := memory.NewUserStore()
	tenants := memory.NewTenantStore()
	properties := memory.NewPropertyStore()
	contacts := memory.NewContactStore()
	campaigns := memory.NewCampaignStore()
	sessions := memory.NewAgentSessionStore()
	pool := worker.NewPool(4)
	bridge := messaging.NewLogBridge()

	executor := campaign.NewExecutor(campaign.ExecutorConfig{}, campaigns, contacts, tenants, bridge, pool)
	propertySvc := service.NewPropertyService(properties, users)
	contactSvc := service.NewContactService(contacts, users)
	registry := tools.NewRegistry(tools.CRMTools(tools.Deps{
		Properties: propertySvc,
		Contacts:   contactSvc,
		Tenants:    tenants,
		Bridge:     bridge,
	})...)

	srv := New(Config{CORSOrigins: []string{"https://app.example.com"}}, Services{
		Users:      service.NewUserService(users, tenants, issuer),
		Tenants:    service.NewTenantService(tenants, users, properties, contacts, campaigns, sessions),
		Properties: propertySvc,
		Contacts:   contactSvc,
		Campaigns:  service.NewCampaignService(campaigns, contacts, executor),
		Agent:      agent.NewOrchestrator(agent.OrchestratorConfig{}, sessions, tenants, users, registry, nil, pool),
	}, issuer, users)

	ts := httptest.NewServer(srv.Handler(zerolog.Nop()))
	t.Cleanup(func() {
		ts.Close()
		_ = pool.Stop(context.Background())
	})
	return &testServer{Server: ts, pool: pool, bridge: bridge}
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

func (ts *testServer) do(t *testing.T, c call) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, ts.URL+c.path, body)
	require.NoError(t, err)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func (ts *testServer) json(t *testing.T, c call, status int, into any) *http.Response {
	t.Helper()
	res, data := ts.do(t, c)
	require.Equal(t, status, res.StatusCode, "body: %s", data)
	if into != nil {
		require.NoError(t, json.Unmarshal(data, into))
	}
	return res
}

func (ts *testServer) errorCode(t *testing.T, c call, status int) string {
	t.Helper()
	var body errorBody
	ts.json(t, c, status, &body)
	return body.Error.Code
}

// signup registers and logs in a user, returning its token.
func (ts *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	ts.json(t, call{method: http.MethodPost, path: "/api/auth/register", body: service.RegisterInput{
		Email: email, Password: "correct-horse", Name: email,
	}}, http.StatusCreated, nil)

	var login service.LoginResult
	ts.json(t, call{method: http.MethodPost, path: "/api/auth/login", body: loginRequest{
		Email: email, Password: "correct-horse",
	}}, http.StatusOK, &login)
	require.NotEmpty(t, login.Token)
	return login.Token
}

// agency creates a tenant owned by a new user and returns its token, with
// the user now bound to the tenant.
func (ts *testServer) agency(t *testing.T, email, businessID string) (string, *models.Tenant) {
	t.Helper()
	token := ts.signup(t, email)
	var tenant models.Tenant
	ts.json(t, call{method: http.MethodPost, path: "/api/tenants", token: token, body: service.CreateTenantInput{
		Name: "Agency " + businessID, BusinessID: businessID,
	}}, http.StatusCreated, &tenant)
	return token, &tenant
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	res, body := ts.do(t, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
	require.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, "unauthenticated", ts.errorCode(t, call{method: http.MethodGet, path: "/api/auth/me"}, http.StatusUnauthorized))
	require.Equal(t, "unauthenticated", ts.errorCode(t, call{method: http.MethodGet, path: "/api/auth/me", token: "garbage"}, http.StatusUnauthorized))

	ts.signup(t, "ana@example.com")
	require.Equal(t, "unauthenticated", ts.errorCode(t, call{method: http.MethodPost, path: "/api/auth/login", body: loginRequest{
		Email: "ana@example.com", Password: "wrong-password",
	}}, http.StatusUnauthorized))

	// duplicate email
	ts.json(t, call{method: http.MethodPost, path: "/api/auth/register", body: service.RegisterInput{
		Email: "ANA@example.com", Password: "correct-horse", Name: "Ana",
	}}, http.StatusConflict, nil)

	require.Equal(t, "invalid_argument", ts.errorCode(t, call{method: http.MethodPost, path: "/api/auth/register"}, http.StatusBadRequest))
	require.Equal(t, "not_found", ts.errorCode(t, call{method: http.MethodGet, path: "/nope"}, http.StatusNotFound))
}

func TestTenantLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token, tenant := ts.agency(t, "owner@example.com", "12.345.678/0001-90")
	require.Equal(t, "12345678000190", tenant.BusinessID)

	var me models.User
	ts.json(t, call{method: http.MethodGet, path: "/api/auth/me", token: token}, http.StatusOK, &me)
	require.Equal(t, tenant.TenantID, *me.TenantID)
	require.Equal(t, models.RoleManager, me.Role)

	// same business id again
	other := ts.signup(t, "other@example.com")
	ts.json(t, call{method: http.MethodPost, path: "/api/tenants", token: other, body: service.CreateTenantInput{
		Name: "Copy", BusinessID: "12345678000190",
	}}, http.StatusConflict, nil)

	var otherUser models.User
	ts.json(t, call{method: http.MethodGet, path: "/api/auth/me", token: other}, http.StatusOK, &otherUser)

	membersPath := "/api/tenants/" + tenant.TenantID.String() + "/members"
	ts.json(t, call{method: http.MethodPost, path: membersPath, token: token, body: service.AddMemberInput{
		UserID: otherUser.UserID, Role: models.RoleAgent,
	}}, http.StatusOK, nil)
	ts.json(t, call{method: http.MethodPost, path: membersPath, token: token, body: service.AddMemberInput{
		UserID: otherUser.UserID,
	}}, http.StatusConflict, nil)

	// removing the owner is always rejected
	require.Equal(t, "failed_precondition", ts.errorCode(t, call{
		method: http.MethodDelete, path: membersPath + "/" + me.UserID.String(), token: token,
	}, http.StatusBadRequest))

	var stats service.TenantStats
	ts.json(t, call{method: http.MethodGet, path: "/api/tenants/" + tenant.TenantID.String() + "/stats", token: token}, http.StatusOK, &stats)
	require.Equal(t, 2, stats.Members)

	// only admins list tenants
	ts.json(t, call{method: http.MethodGet, path: "/api/tenants", token: token}, http.StatusForbidden, nil)
}

func TestPropertyVersioning(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.agency(t, "owner@example.com", "111")

	var created models.Property
	res := ts.json(t, call{method: http.MethodPost, path: "/api/properties", token: token, body: service.CreatePropertyInput{
		Title:   "Apartamento no centro",
		Type:    models.PropertyTypeApartment,
		Purpose: models.PropertyPurposeSale,
		Price:   450000,
		Address: models.Address{City: "Curitiba", State: "PR"},
	}}, http.StatusCreated, &created)
	require.Equal(t, `"1"`, res.Header.Get("ETag"))

	path := "/api/properties/" + created.PropertyID.String()
	res = ts.json(t, call{method: http.MethodGet, path: path, token: token}, http.StatusOK, nil)
	require.Equal(t, `"1"`, res.Header.Get("ETag"))

	res, _ = ts.do(t, call{method: http.MethodGet, path: path, token: token, headers: map[string]string{"If-None-Match": `"1"`}})
	require.Equal(t, http.StatusNotModified, res.StatusCode)

	var updated models.Property
	res = ts.json(t, call{method: http.MethodPatch, path: path, token: token, body: map[string]any{"price": 430000},
		headers: map[string]string{"If-Match": `"1"`}}, http.StatusOK, &updated)
	require.Equal(t, `"2"`, res.Header.Get("ETag"))
	require.InDelta(t, 430000, updated.Price, 0.001)

	// stale copy
	require.Equal(t, "aborted", ts.errorCode(t, call{method: http.MethodPatch, path: path, token: token, body: map[string]any{"price": 1},
		headers: map[string]string{"If-Match": `"1"`}}, http.StatusConflict))

	ts.json(t, call{method: http.MethodPatch, path: path, token: token, body: map[string]any{"price": 1},
		headers: map[string]string{"If-Match": "yesterday"}}, http.StatusBadRequest, nil)

	var list listResponse[models.Property]
	ts.json(t, call{method: http.MethodGet, path: "/api/properties?city=curitiba&maxPrice=500000", token: token}, http.StatusOK, &list)
	require.Len(t, list.Items, 1)
	require.Equal(t, 50, list.Limit)

	ts.json(t, call{method: http.MethodGet, path: "/api/properties?minPrice=abc", token: token}, http.StatusBadRequest, nil)

	// other tenants cannot see it
	outsider, _ := ts.agency(t, "outsider@example.com", "222")
	ts.json(t, call{method: http.MethodGet, path: path, token: outsider}, http.StatusForbidden, nil)

	res, _ = ts.do(t, call{method: http.MethodDelete, path: path, token: token})
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	ts.json(t, call{method: http.MethodGet, path: path, token: token}, http.StatusNotFound, nil)
}

func TestCampaignExecution(t *testing.T) {
	ts := newTestServer(t)
	token, tenant := ts.agency(t, "owner@example.com", "333")

	channel := "escritorio"
	ts.json(t, call{method: http.MethodPatch, path: "/api/tenants/" + tenant.TenantID.String(), token: token,
		body: service.UpdateTenantInput{WhatsAppChannelID: &channel}}, http.StatusOK, nil)

	var empty models.Campaign
	ts.json(t, call{method: http.MethodPost, path: "/api/campaigns", token: token, body: service.CreateCampaignInput{
		Name:     "Sem público",
		Template: models.MessageTemplate{Text: "Olá {{name}}"},
	}}, http.StatusCreated, &empty)
	require.Equal(t, "invalid_argument", ts.errorCode(t, call{
		method: http.MethodPost, path: "/api/campaigns/" + empty.CampaignID.String() + "/execute", token: token,
	}, http.StatusBadRequest))

	ts.json(t, call{method: http.MethodPost, path: "/api/contacts", token: token, body: service.CreateContactInput{
		Name: "Maria Souza", Phone: "(41) 99999-0000", Tags: []string{"VIP"},
	}}, http.StatusCreated, nil)

	var c models.Campaign
	ts.json(t, call{method: http.MethodPost, path: "/api/campaigns", token: token, body: service.CreateCampaignInput{
		Name:     "Lançamento",
		Template: models.MessageTemplate{Text: "Olá {{firstName}}, temos novidades!"},
		Audience: models.Audience{Filter: models.AudienceFilter{Tags: []string{"vip"}}},
	}}, http.StatusCreated, &c)
	require.Equal(t, 1, c.Stats.AudienceSize)

	path := "/api/campaigns/" + c.CampaignID.String()
	ts.json(t, call{method: http.MethodPost, path: path + "/execute", token: token}, http.StatusAccepted, nil)
	ts.pool.Wait()

	var done models.Campaign
	ts.json(t, call{method: http.MethodGet, path: path, token: token}, http.StatusOK, &done)
	require.Equal(t, models.CampaignStatusCompleted, done.Status)
	require.Equal(t, 1, done.Stats.Sent)
	require.Len(t, ts.bridge.Sent(), 1)

	// completed campaigns cannot run again
	ts.json(t, call{method: http.MethodPost, path: path + "/execute", token: token}, http.StatusBadRequest, nil)
}

func TestAgentDemoSession(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.agency(t, "owner@example.com", "444")

	var s models.AgentSession
	ts.json(t, call{method: http.MethodPost, path: "/api/agent/sessions", token: token, body: agent.StartSessionInput{
		Goal: "Quero ajuda com meus leads",
	}}, http.StatusAccepted, &s)
	ts.pool.Wait()

	var got models.AgentSession
	ts.json(t, call{method: http.MethodGet, path: "/api/agent/sessions/" + s.SessionID.String(), token: token}, http.StatusOK, &got)
	require.Equal(t, models.SessionStatusCompleted, got.Status)
	require.Len(t, got.Messages, 2)

	var toolList struct {
		Items []tools.Schema `json:"items"`
	}
	ts.json(t, call{method: http.MethodGet, path: "/api/agent/tools", token: token}, http.StatusOK, &toolList)
	require.Len(t, toolList.Items, 4)

	ts.json(t, call{method: http.MethodPost, path: "/api/agent/sessions/" + s.SessionID.String() + "/archive", token: token}, http.StatusOK, nil)
	ts.json(t, call{method: http.MethodPost, path: "/api/agent/sessions/" + s.SessionID.String() + "/chat", token: token,
		body: chatRequest{Message: "oi"}}, http.StatusBadRequest, nil)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	res, _ := ts.do(t, call{method: http.MethodOptions, path: "/api/properties", headers: map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  http.MethodPatch,
		"Access-Control-Request-Headers": "authorization,if-match",
	}})
	require.Equal(t, "https://app.example.com", res.Header.Get("Access-Control-Allow-Origin"))
}
