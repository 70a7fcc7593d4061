package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/imobflow/imobflow/internal/store"
)

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	var in service.CreateCampaignInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	c, err := s.svc.Campaigns.Create(r.Context(), actor, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(c.Version))
	writeJSON(w, http.StatusCreated, c)
	return nil
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	q := r.URL.Query()
	page, err := pageFromQuery(q)
	if err != nil {
		return err
	}
	campaigns, err := s.svc.Campaigns.List(r.Context(), actor, store.CampaignFilter{
		Status: models.CampaignStatus(q.Get("status")),
		Page:   page,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newList(campaigns, page))
	return nil
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	c, err := s.svc.Campaigns.Get(r.Context(), actor, id)
	if err != nil {
		return err
	}
	writeVersioned(w, r, c.Version, c)
	return nil
}

func (s *Server) updateCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var in service.UpdateCampaignInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if in.Version, err = ifMatch(r); err != nil {
		return err
	}
	c, err := s.svc.Campaigns.Update(r.Context(), actor, id, in)
	if err != nil {
		return err
	}
	w.Header().Set("ETag", etag(c.Version))
	writeJSON(w, http.StatusOK, c)
	return nil
}

func (s *Server) deleteCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Campaigns.Delete(r.Context(), actor, id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type campaignAction func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Campaign, error)

// campaignTransition runs a state change and answers with the campaign.
func campaignTransition(action campaignAction, status int) actorHandler {
	return func(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
		id, err := pathID(r, "id")
		if err != nil {
			return err
		}
		c, err := action(r.Context(), actor, id)
		if err != nil {
			return err
		}
		writeJSON(w, status, c)
		return nil
	}
}

// executeCampaign answers 202: messages are sent in the background and
// progress is read back with GET.
func (s *Server) executeCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	return campaignTransition(s.svc.Campaigns.Execute, http.StatusAccepted)(w, r, actor)
}

func (s *Server) pauseCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	return campaignTransition(s.svc.Campaigns.Pause, http.StatusOK)(w, r, actor)
}

func (s *Server) cancelCampaign(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	return campaignTransition(s.svc.Campaigns.Cancel, http.StatusOK)(w, r, actor)
}
