package server

import (
	"net/http"

	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) error {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	user, err := s.svc.Users.Register(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, user)
	return nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) error {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	res, err := s.svc.Users.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	user, err := s.svc.Users.Me(r.Context(), actor)
	if err != nil {
		return err
	}
	writeVersioned(w, r, user.Version, user)
	return nil
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	tenantID, err := queryUUID(r.URL.Query(), "tenantId")
	if err != nil {
		return err
	}
	users, err := s.svc.Users.ListTenantUsers(r.Context(), actor, tenantID)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
	return nil
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	user, err := s.svc.Users.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeVersioned(w, r, user.Version, user)
	return nil
}

func (s *Server) updateUserRole(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in roleRequest
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	user, err := s.svc.Users.UpdateRole(r.Context(), actor, id, in.Role)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, user)
	return nil
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	user, err := s.svc.Users.Deactivate(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, user)
	return nil
}
