package store

import (
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors shared by every store.
var (
	// ErrVersionConflict is returned by Update when the stored document has
	// moved past the version the caller read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateID is returned by Create when the document ID is taken.
	ErrDuplicateID = errors.New("document already exists")
)

// Scope restricts list operations. A nil TenantID lists across tenants
// (admin only). A non-nil OwnerID keeps only documents that user owns, see
// Owns.
type Scope struct {
	TenantID *uuid.UUID
	OwnerID  *uuid.UUID
}

// TenantScope returns a scope covering a whole tenant.
func TenantScope(tenantID uuid.UUID) Scope {
	return Scope{TenantID: &tenantID}
}

// Page holds limit/offset pagination.
type Page struct {
	Limit  int // 0 = DefaultLimit
	Offset int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Normalize clamps the page into the allowed range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Owns reports whether ownerID owns a document. An assignee, when set, is
// the sole owner; the creator owns only unassigned documents.
func Owns(ownerID uuid.UUID, createdBy uuid.UUID, assignedTo *uuid.UUID) bool {
	if assignedTo != nil {
		return *assignedTo == ownerID
	}
	return createdBy == ownerID
}

// Matches reports whether a document with the given tenant and ownership
// falls inside the scope.
func (s Scope) Matches(tenantID *uuid.UUID, createdBy uuid.UUID, assignedTo *uuid.UUID) bool {
	if s.TenantID != nil {
		if tenantID == nil || *tenantID != *s.TenantID {
			return false
		}
	}
	if s.OwnerID != nil && !Owns(*s.OwnerID, createdBy, assignedTo) {
		return false
	}
	return true
}
