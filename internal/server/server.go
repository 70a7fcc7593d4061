package server

import (
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/imobflow/imobflow/internal/agent"
	"github.com/imobflow/imobflow/internal/auth"
	httpmiddleware "github.com/imobflow/imobflow/internal/http"
	"github.com/imobflow/imobflow/internal/logger"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Users      *service.UserService
	Tenants    *service.TenantService
	Properties *service.PropertyService
	Contacts   *service.ContactService
	Campaigns  *service.CampaignService
	Agent      *agent.Orchestrator
}

type Config struct {
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
}

// Server routes the JSON API onto the domain services.
type Server struct {
	cfg          Config
	svc          Services
	issuer       *auth.TokenIssuer
	users        store.UserStore
	requireActor func(http.Handler) http.Handler
}

func New(cfg Config, svc Services, issuer *auth.TokenIssuer, users store.UserStore) *Server {
	return &Server{
		cfg:          cfg,
		svc:          svc,
		issuer:       issuer,
		users:        users,
		requireActor: auth.Middleware(issuer, users, writeError),
	}
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor auth.Actor) error

// authed wraps h with bearer authentication.
func (s *Server) authed(h actorHandler) http.Handler {
	return s.requireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, r, connect.NewError(connect.CodeUnauthenticated, errors.New("not authenticated")))
			return
		}
		if err := h(w, r, actor); err != nil {
			writeError(w, r, err)
		}
	}))
}

func public(h func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("POST /api/auth/register", public(s.register))
	mux.Handle("POST /api/auth/login", public(s.login))
	mux.Handle("GET /api/auth/me", s.authed(s.me))

	mux.Handle("GET /api/users", s.authed(s.listUsers))
	mux.Handle("GET /api/users/{id}", s.authed(s.getUser))
	mux.Handle("PATCH /api/users/{id}/role", s.authed(s.updateUserRole))
	mux.Handle("DELETE /api/users/{id}", s.authed(s.deactivateUser))

	mux.Handle("POST /api/tenants", s.authed(s.createTenant))
	mux.Handle("GET /api/tenants", s.authed(s.listTenants))
	mux.Handle("GET /api/tenants/{id}", s.authed(s.getTenant))
	mux.Handle("PATCH /api/tenants/{id}", s.authed(s.updateTenant))
	mux.Handle("DELETE /api/tenants/{id}", s.authed(s.deleteTenant))
	mux.Handle("POST /api/tenants/{id}/members", s.authed(s.addMember))
	mux.Handle("DELETE /api/tenants/{id}/members/{userId}", s.authed(s.removeMember))
	mux.Handle("POST /api/tenants/{id}/transfer", s.authed(s.transferTenant))
	mux.Handle("GET /api/tenants/{id}/stats", s.authed(s.tenantStats))

	mux.Handle("POST /api/properties", s.authed(s.createProperty))
	mux.Handle("GET /api/properties", s.authed(s.listProperties))
	mux.Handle("GET /api/properties/{id}", s.authed(s.getProperty))
	mux.Handle("PATCH /api/properties/{id}", s.authed(s.updateProperty))
	mux.Handle("DELETE /api/properties/{id}", s.authed(s.deleteProperty))

	mux.Handle("POST /api/contacts", s.authed(s.createContact))
	mux.Handle("GET /api/contacts", s.authed(s.listContacts))
	mux.Handle("GET /api/contacts/{id}", s.authed(s.getContact))
	mux.Handle("PATCH /api/contacts/{id}", s.authed(s.updateContact))
	mux.Handle("DELETE /api/contacts/{id}", s.authed(s.deleteContact))
	mux.Handle("POST /api/contacts/{id}/interactions", s.authed(s.addInteraction))

	mux.Handle("POST /api/campaigns", s.authed(s.createCampaign))
	mux.Handle("GET /api/campaigns", s.authed(s.listCampaigns))
	mux.Handle("GET /api/campaigns/{id}", s.authed(s.getCampaign))
	mux.Handle("PATCH /api/campaigns/{id}", s.authed(s.updateCampaign))
	mux.Handle("DELETE /api/campaigns/{id}", s.authed(s.deleteCampaign))
	mux.Handle("POST /api/campaigns/{id}/execute", s.authed(s.executeCampaign))
	mux.Handle("POST /api/campaigns/{id}/pause", s.authed(s.pauseCampaign))
	mux.Handle("POST /api/campaigns/{id}/cancel", s.authed(s.cancelCampaign))

	mux.Handle("POST /api/agent/sessions", s.authed(s.startSession))
	mux.Handle("GET /api/agent/sessions", s.authed(s.listSessions))
	mux.Handle("GET /api/agent/sessions/{id}", s.authed(s.getSession))
	mux.Handle("POST /api/agent/sessions/{id}/chat", s.authed(s.chat))
	mux.Handle("POST /api/agent/sessions/{id}/archive", s.authed(s.archiveSession))
	mux.Handle("GET /api/agent/tools", s.authed(s.listTools))

	mux.Handle("/", public(func(w http.ResponseWriter, r *http.Request) error {
		return connect.NewError(connect.CodeNotFound, errors.New("route not found"))
	}))

	return mux
}

// Handler returns the API wrapped in the middleware chain: request id,
// client ip, request logging, gzip, then CORS.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	return httpmiddleware.Chain(s.routes(),
		httpmiddleware.RequestIDMiddleware(),
		httpmiddleware.ClientIPMiddleware(),
		logger.RequestLogger(log, requestFields),
		func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) },
		withCORS(s.cfg.CORSOrigins),
	)
}

func requestFields(r *http.Request) map[string]string {
	return map[string]string{
		"request_id": httpmiddleware.RequestIDFromContext(r.Context()),
		"client_ip":  httpmiddleware.ClientIPFromContext(r.Context()),
	}
}

func withCORS(allowedOrigins []string) httpmiddleware.Middleware {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-Match", "If-None-Match", httpmiddleware.RequestIDHeader},
		ExposedHeaders: []string{"ETag", httpmiddleware.RequestIDHeader},
	})
	return middleware.Handler
}
