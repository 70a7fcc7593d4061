package server

import (
	"net/http"

	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/imobflow/imobflow/internal/store"
)

func (s *Server) createContact(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	var in service.CreateContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	contact, err := s.svc.Contacts.Create(r.Context(), actor, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(contact.Version))
	writeJSON(w, http.StatusCreated, contact)
	return nil
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	q := r.URL.Query()
	page, err := pageFromQuery(q)
	if err != nil {
		return err
	}
	filter := store.ContactFilter{
		Tags:   queryList(q, "tag"),
		Search: q.Get("q"),
		Page:   page,
	}
	for _, status := range queryList(q, "status") {
		filter.Statuses = append(filter.Statuses, models.ContactStatus(status))
	}

	contacts, err := s.svc.Contacts.List(r.Context(), actor, filter)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newList(contacts, page))
	return nil
}

func (s *Server) getContact(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	contact, err := s.svc.Contacts.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeVersioned(w, r, contact.Version, contact)
	return nil
}

func (s *Server) updateContact(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in service.UpdateContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if in.Version, err = ifMatch(r); err != nil {
		return err
	}
	contact, err := s.svc.Contacts.Update(r.Context(), actor, id, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(contact.Version))
	writeJSON(w, http.StatusOK, contact)
	return nil
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Contacts.Delete(r.Context(), actor, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) addInteraction(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in service.InteractionInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	contact, err := s.svc.Contacts.AddInteraction(r.Context(), actor, id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, contact)
	return nil
}
