package models

import (
	"time"

	"github.com/google/uuid"
)

type PropertyType string

const (
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeLand       PropertyType = "land"
	PropertyTypeCommercial PropertyType = "commercial"
	PropertyTypeRural      PropertyType = "rural"
)

func (t PropertyType) Valid() bool {
	switch t {
	case PropertyTypeHouse, PropertyTypeApartment, PropertyTypeLand, PropertyTypeCommercial, PropertyTypeRural:
		return true
	}
	return false
}

type PropertyPurpose string

const (
	PropertyPurposeSale PropertyPurpose = "sale"
	PropertyPurposeRent PropertyPurpose = "rent"
	PropertyPurposeBoth PropertyPurpose = "both"
)

func (p PropertyPurpose) Valid() bool {
	switch p {
	case PropertyPurposeSale, PropertyPurposeRent, PropertyPurposeBoth:
		return true
	}
	return false
}

type PropertyStatus string

const (
	PropertyStatusAvailable   PropertyStatus = "available"
	PropertyStatusReserved    PropertyStatus = "reserved"
	PropertyStatusSold        PropertyStatus = "sold"
	PropertyStatusRented      PropertyStatus = "rented"
	PropertyStatusUnavailable PropertyStatus = "unavailable"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyStatusAvailable, PropertyStatusReserved, PropertyStatusSold, PropertyStatusRented, PropertyStatusUnavailable:
		return true
	}
	return false
}

// Address is the postal location of a property.
type Address struct {
	Street       string `json:"street,omitempty"`
	Number       string `json:"number,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zipCode,omitempty"`
}

// Property is a listing owned by a tenant.
type Property struct {
	PropertyID uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenantId"`
	CreatedBy  uuid.UUID  `json:"createdBy"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`

	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Type         PropertyType    `json:"type"`
	Purpose      PropertyPurpose `json:"purpose"`
	Status       PropertyStatus  `json:"status"`
	Price        float64         `json:"price"`
	Area         float64         `json:"area,omitempty"` // square meters
	Bedrooms     int             `json:"bedrooms,omitempty"`
	Bathrooms    int             `json:"bathrooms,omitempty"`
	ParkingSpots int             `json:"parkingSpots,omitempty"`
	Address      Address         `json:"address"`
	Features     []string        `json:"features,omitempty"`

	IsActive  bool      `json:"isActive"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
