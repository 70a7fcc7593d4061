package server

import (
	"net/http"

	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/imobflow/imobflow/internal/store"
)

func (s *Server) createProperty(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	var in service.CreatePropertyInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	property, err := s.svc.Properties.Create(r.Context(), actor, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(property.Version))
	writeJSON(w, http.StatusCreated, property)
	return nil
}

func propertyFilter(r *http.Request) (store.PropertyFilter, error) {
	q := r.URL.Query()
	page, err := pageFromQuery(q)
	if err != nil {
		return store.PropertyFilter{}, err
	}
	f := store.PropertyFilter{
		Status:  models.PropertyStatus(q.Get("status")),
		Type:    models.PropertyType(q.Get("type")),
		Purpose: models.PropertyPurpose(q.Get("purpose")),
		City:    q.Get("city"),
		Search:  q.Get("q"),
		Page:    page,
	}
	if f.MinPrice, err = queryFloat(q, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryFloat(q, "maxPrice"); err != nil {
		return f, err
	}
	if f.MinBedrooms, err = queryInt(q, "minBedrooms"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	filter, err := propertyFilter(r)
	if err != nil {
		return err
	}
	properties, err := s.svc.Properties.List(r.Context(), actor, filter)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newList(properties, filter.Page))
	return nil
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	property, err := s.svc.Properties.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeVersioned(w, r, property.Version, property)
	return nil
}

func (s *Server) updateProperty(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in service.UpdatePropertyInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if in.Version, err = ifMatch(r); err != nil {
		return err
	}
	property, err := s.svc.Properties.Update(r.Context(), actor, id, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(property.Version))
	writeJSON(w, http.StatusOK, property)
	return nil
}

func (s *Server) deleteProperty(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Properties.Delete(r.Context(), actor, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
