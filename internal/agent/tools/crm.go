package tools

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/messaging"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

const (
	SearchProperties    = "search_properties"
	GetPropertyDetails  = "get_property_details"
	SearchContacts      = "search_contacts"
	SendWhatsAppMessage = "send_whatsapp_message"

	defaultResults = 10
	maxResults     = 25
)

// PropertyFinder is the property read API the tools need.
type PropertyFinder interface {
	Get(ctx context.Context, actor auth.Actor, propertyID uuid.UUID) (*models.Property, error)
	List(ctx context.Context, actor auth.Actor, filter store.PropertyFilter) ([]*models.Property, error)
}

// ContactFinder is the contact read API the tools need.
type ContactFinder interface {
	List(ctx context.Context, actor auth.Actor, filter store.ContactFilter) ([]*models.Contact, error)
}

// Deps are the capabilities the CRM tools delegate to. Reads go through the
// services so the actor's authorization applies.
type Deps struct {
	Properties PropertyFinder
	Contacts   ContactFinder
	Tenants    store.TenantStore
	Bridge     messaging.Bridge
}

// CRMTools returns the fixed tool set exposed to the agent.
func CRMTools(d Deps) []Tool {
	return []Tool{
		{
			Name:        SearchProperties,
			Description: "Busca imóveis disponíveis da imobiliária por cidade, tipo, finalidade, faixa de preço e número de quartos.",
			Parameters: object(map[string]any{
				"query":       prop("string", "Texto livre buscado no título, descrição e bairro"),
				"city":        prop("string", "Cidade"),
				"type":        enumProp("Tipo do imóvel", "house", "apartment", "land", "commercial", "rural"),
				"purpose":     enumProp("Finalidade", "sale", "rent", "both"),
				"status":      enumProp("Situação", "available", "reserved", "sold", "rented", "unavailable"),
				"minPrice":    prop("number", "Preço mínimo"),
				"maxPrice":    prop("number", "Preço máximo"),
				"minBedrooms": prop("integer", "Quantidade mínima de quartos"),
				"limit":       prop("integer", "Máximo de resultados (padrão 10)"),
			}),
			Execute: d.searchProperties,
		},
		{
			Name:        GetPropertyDetails,
			Description: "Retorna todos os detalhes de um imóvel pelo seu id.",
			Parameters: object(map[string]any{
				"id": prop("string", "Id do imóvel"),
			}, "id"),
			Execute: d.getPropertyDetails,
		},
		{
			Name:        SearchContacts,
			Description: "Busca contatos (leads e clientes) por nome, e-mail, telefone, situação ou etiquetas.",
			Parameters: object(map[string]any{
				"query":  prop("string", "Nome, e-mail ou telefone"),
				"status": enumProp("Situação do contato", "lead", "prospect", "client", "inactive"),
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Etiquetas; qualquer uma delas",
				},
				"limit": prop("integer", "Máximo de resultados (padrão 10)"),
			}),
			Execute: d.searchContacts,
		},
		{
			Name:        SendWhatsAppMessage,
			Description: "Envia uma mensagem de WhatsApp pelo canal da imobiliária.",
			Parameters: object(map[string]any{
				"phone":   prop("string", "Telefone do destinatário com DDD"),
				"message": prop("string", "Texto da mensagem"),
			}, "phone", "message"),
			Execute: d.sendWhatsAppMessage,
		},
	}
}

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

type propertySummary struct {
	ID       uuid.UUID              `json:"id"`
	Title    string                 `json:"title"`
	Type     models.PropertyType    `json:"type"`
	Purpose  models.PropertyPurpose `json:"purpose"`
	Status   models.PropertyStatus  `json:"status"`
	Price    float64                `json:"price"`
	Bedrooms int                    `json:"bedrooms,omitempty"`
	Area     float64                `json:"area,omitempty"`
	City     string                 `json:"city,omitempty"`
	District string                 `json:"neighborhood,omitempty"`
}

func (d Deps) searchProperties(ctx context.Context, actor auth.Actor, args map[string]any) (any, error) {
	filter := store.PropertyFilter{
		Search:  stringArg(args, "query"),
		City:    stringArg(args, "city"),
		Type:    models.PropertyType(stringArg(args, "type")),
		Purpose: models.PropertyPurpose(stringArg(args, "purpose")),
		Status:  models.PropertyStatus(stringArg(args, "status")),
	}

	var err error
	if filter.MinPrice, err = floatArg(args, "minPrice"); err != nil {
		return nil, err
	}
	if filter.MaxPrice, err = floatArg(args, "maxPrice"); err != nil {
		return nil, err
	}
	if filter.MinBedrooms, err = intArg(args, "minBedrooms"); err != nil {
		return nil, err
	}
	if filter.Page.Limit, err = limitArg(args, defaultResults, maxResults); err != nil {
		return nil, err
	}

	properties, err := d.Properties.List(ctx, actor, filter)
	if err != nil {
		return nil, err
	}

	out := make([]propertySummary, 0, len(properties))
	for _, p := range properties {
		out = append(out, propertySummary{
			ID:       p.PropertyID,
			Title:    p.Title,
			Type:     p.Type,
			Purpose:  p.Purpose,
			Status:   p.Status,
			Price:    p.Price,
			Bedrooms: p.Bedrooms,
			Area:     p.Area,
			City:     p.Address.City,
			District: p.Address.Neighborhood,
		})
	}
	return map[string]any{"count": len(out), "properties": out}, nil
}

func (d Deps) getPropertyDetails(ctx context.Context, actor auth.Actor, args map[string]any) (any, error) {
	id, err := uuidArg(args, "id")
	if err != nil {
		return nil, err
	}
	return d.Properties.Get(ctx, actor, id)
}

type contactSummary struct {
	ID     uuid.UUID            `json:"id"`
	Name   string               `json:"name"`
	Email  string               `json:"email,omitempty"`
	Phone  string               `json:"phone,omitempty"`
	Status models.ContactStatus `json:"status"`
	Tags   []string             `json:"tags,omitempty"`
}

func (d Deps) searchContacts(ctx context.Context, actor auth.Actor, args map[string]any) (any, error) {
	tags, err := stringsArg(args, "tags")
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args, defaultResults, maxResults)
	if err != nil {
		return nil, err
	}

	filter := store.ContactFilter{
		Search: stringArg(args, "query"),
		Tags:   tags,
		Page:   store.Page{Limit: limit},
	}
	if status := stringArg(args, "status"); status != "" {
		filter.Statuses = []models.ContactStatus{models.ContactStatus(status)}
	}

	contacts, err := d.Contacts.List(ctx, actor, filter)
	if err != nil {
		return nil, err
	}

	out := make([]contactSummary, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactSummary{ID: c.ContactID, Name: c.Name, Email: c.Email, Phone: c.Phone, Status: c.Status, Tags: c.Tags})
	}
	return map[string]any{"count": len(out), "contacts": out}, nil
}

func (d Deps) sendWhatsAppMessage(ctx context.Context, actor auth.Actor, args map[string]any) (any, error) {
	phone, err := requiredString(args, "phone")
	if err != nil {
		return nil, err
	}
	text, err := requiredString(args, "message")
	if err != nil {
		return nil, err
	}

	// sending is an execute action on the actor's own outbound message
	res := auth.Resource{Kind: auth.KindCampaign, TenantID: actor.TenantID, CreatedBy: actor.UserID}
	if err := auth.Authorize(ctx, actor, auth.ActionExecute, res); err != nil {
		return nil, err
	}
	if actor.TenantID == nil {
		return nil, auth.ErrNoTenant
	}

	tenant, err := d.Tenants.Get(ctx, *actor.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.WhatsApp.ChannelID == "" {
		return nil, errors.New("a imobiliária não tem canal de WhatsApp configurado")
	}

	ack, err := d.Bridge.SendText(ctx, tenant.WhatsApp.ChannelID, messaging.TextMessage{Recipient: phone, Text: text})
	if err != nil {
		return nil, err
	}
	return ack, nil
}
