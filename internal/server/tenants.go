package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/service"
)

type transferRequest struct {
	UserID uuid.UUID `json:"userId"`
}

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	var in service.CreateTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	tenant, err := s.svc.Tenants.Create(r.Context(), actor, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(tenant.Version))
	writeJSON(w, http.StatusCreated, tenant)
	return nil
}

func (s *Server) listTenants(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	q := r.URL.Query()
	page, err := pageFromQuery(q)
	if err != nil {
		return err
	}
	includeInactive, _ := strconv.ParseBool(q.Get("includeInactive"))
	tenants, err := s.svc.Tenants.List(r.Context(), actor, includeInactive, page)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newList(tenants, page))
	return nil
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	tenant, err := s.svc.Tenants.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeVersioned(w, r, tenant.Version, tenant)
	return nil
}

func (s *Server) updateTenant(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in service.UpdateTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if in.Version, err = ifMatch(r); err != nil {
		return err
	}
	tenant, err := s.svc.Tenants.Update(r.Context(), actor, id, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(tenant.Version))
	writeJSON(w, http.StatusOK, tenant)
	return nil
}

func (s *Server) deleteTenant(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Tenants.Delete(r.Context(), actor, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in service.AddMemberInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	tenant, err := s.svc.Tenants.AddMember(r.Context(), actor, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, tenant)
	return nil
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		return err
	}
	tenant, err := s.svc.Tenants.RemoveMember(r.Context(), actor, id, userID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, tenant)
	return nil
}

func (s *Server) transferTenant(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in transferRequest
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	tenant, err := s.svc.Tenants.TransferOwnership(r.Context(), actor, id, in.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, tenant)
	return nil
}

func (s *Server) tenantStats(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	stats, err := s.svc.Tenants.Stats(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}
