package domain

import "strings"

// DefaultUserName is shown when a profile cannot be loaded.
const DefaultUserName = "Bruger"

// UserProfile is the public profile of an identity subject.
type UserProfile struct {
	ID            string `json:"id"` // identity subject id
	Name          string `json:"name"`
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	Address       string `json:"address,omitempty"`
	AssociationID string `json:"association_id"`
}

// DefaultProfile is the degraded profile returned while the remote store is
// unreachable and nothing is cached.
func DefaultProfile(id string) UserProfile {
	return UserProfile{ID: id, Name: DefaultUserName, AssociationID: AllAssociations}
}

// NewUserProfile carries the fields written when a profile is created.
type NewUserProfile struct {
	Name          string `json:"name" validate:"notblank,max=200"`
	Email         string `json:"email" validate:"required,email"`
	PhoneNumber   string `json:"phone_number,omitempty" validate:"max=40"`
	Address       string `json:"address,omitempty" validate:"max=300"`
	AssociationID string `json:"association_id,omitempty"`
}

// Trimmed trims text fields and applies the association default.
func (n NewUserProfile) Trimmed() NewUserProfile {
	n.Name = strings.TrimSpace(n.Name)
	n.Email = strings.TrimSpace(n.Email)
	n.PhoneNumber = strings.TrimSpace(n.PhoneNumber)
	n.Address = strings.TrimSpace(n.Address)
	n.AssociationID = strings.TrimSpace(n.AssociationID)
	if n.AssociationID == "" {
		n.AssociationID = AllAssociations
	}
	return n
}

// UserPatch is a partial profile update.
type UserPatch struct {
	Name          *string `json:"name,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	Address       *string `json:"address,omitempty"`
	AssociationID *string `json:"association_id,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.PhoneNumber == nil && p.Address == nil && p.AssociationID == nil
}

// ContactCard is what another member sees when contacting a tool owner.
type ContactCard struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Contact returns the public contact card of p.
func (p UserProfile) Contact() ContactCard {
	return ContactCard{ID: p.ID, Name: p.Name, Email: p.Email, PhoneNumber: p.PhoneNumber}
}
