package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/client"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/service"
	"gopkg.in/yaml.v3"
)

type CampaignCmd struct {
	Create  CampaignCreateCmd  `cmd:"" help:"Create a campaign from a YAML file"`
	Execute CampaignExecuteCmd `cmd:"" help:"Start sending a campaign"`
	Status  CampaignStatusCmd  `cmd:"" help:"Show campaign progress"`
}

type CampaignCreateCmd struct {
	Config string `help:"Campaign definition (YAML)" required:"" type:"existingfile"`
}

// loadCampaign reads a campaign definition such as:
//
//	name: Lançamento Jardins
//	template:
//	  text: "Olá {{firstName}}, conheça o {{empreendimento}}"
//	  variables:
//	    empreendimento: Residencial Jardins
//	audience:
//	  filter:
//	    tags: [investidor]
//	schedule:
//	  sendImmediately: true
func loadCampaign(path string) (service.CreateCampaignInput, error) {
	var in service.CreateCampaignInput
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("failed to read campaign file: %w", err)
	}
	if err := yaml.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("failed to parse campaign file: %w", err)
	}
	return in, nil
}

func (c *CampaignCreateCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := loadCampaign(c.Config)
	if err != nil {
		return err
	}

	api, _, err := globals.connect()
	if err != nil {
		return err
	}

	campaign, err := api.CreateCampaign(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	out := globals.out()
	fmt.Fprintf(out, "Campaign created: %s\n", campaign.CampaignID)
	fmt.Fprintf(out, "  Status:   %s\n", campaign.Status)
	fmt.Fprintf(out, "  Audience: %d contacts\n", campaign.Stats.AudienceSize)
	return nil
}

type CampaignExecuteCmd struct {
	ID    uuid.UUID `arg:"" help:"Campaign ID"`
	Watch bool      `help:"Follow progress until the campaign finishes"`
}

func (c *CampaignExecuteCmd) Run(ctx context.Context, globals *Globals) error {
	api, _, err := globals.connect()
	if err != nil {
		return err
	}

	campaign, err := api.ExecuteCampaign(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to execute campaign: %w", err)
	}
	fmt.Fprintf(globals.out(), "Sending to %d contacts\n", campaign.Stats.Targeted)

	if c.Watch {
		return watchCampaign(ctx, globals, api, c.ID, 2*time.Second)
	}
	return nil
}

type CampaignStatusCmd struct {
	ID       uuid.UUID     `arg:"" help:"Campaign ID"`
	Watch    bool          `help:"Refresh until the campaign finishes"`
	Interval time.Duration `help:"Refresh interval" default:"2s"`
}

func (c *CampaignStatusCmd) Run(ctx context.Context, globals *Globals) error {
	api, _, err := globals.connect()
	if err != nil {
		return err
	}

	if c.Watch {
		return watchCampaign(ctx, globals, api, c.ID, c.Interval)
	}

	campaign, err := api.GetCampaign(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	printCampaign(globals, campaign)
	return nil
}

func printCampaign(globals *Globals, c *models.Campaign) {
	line := fmt.Sprintf("[%s] %s: %s  sent=%d failed=%d targeted=%d",
		time.Now().Format("15:04:05"), c.Name, c.Status, c.Stats.Sent, c.Stats.Failed, c.Stats.Targeted)
	if c.LastError != "" {
		line += "  error=" + c.LastError
	}
	fmt.Fprintln(globals.out(), line)
}

func finished(status models.CampaignStatus) bool {
	switch status {
	case models.CampaignStatusCompleted, models.CampaignStatusCancelled, models.CampaignStatusPaused:
		return true
	}
	return false
}

// watchCampaign prints progress until the campaign stops running.
func watchCampaign(ctx context.Context, globals *Globals, api *client.Client, id uuid.UUID, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		campaign, err := api.GetCampaign(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get campaign: %w", err)
		}
		printCampaign(globals, campaign)
		if finished(campaign.Status) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
