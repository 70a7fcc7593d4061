package server

import (
	"net/http"

	"github.com/imobflow/imobflow/internal/agent"
	"github.com/imobflow/imobflow/internal/auth"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	var in agent.StartSessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	session, err := s.svc.Agent.StartSession(r.Context(), actor, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, session)
	return nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	page, err := pageFromQuery(r.URL.Query())
	if err != nil {
		return err
	}
	sessions, err := s.svc.Agent.List(r.Context(), actor, page)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newList(sessions, page))
	return nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	session, err := s.svc.Agent.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeVersioned(w, r, session.Version, session)
	return nil
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in chatRequest
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	session, err := s.svc.Agent.Chat(r.Context(), actor, id, in.Message)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, session)
	return nil
}

func (s *Server) archiveSession(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	session, err := s.svc.Agent.Archive(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, session)
	return nil
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request, _ auth.Actor) error {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.svc.Agent.Tools()})
	return nil
}
