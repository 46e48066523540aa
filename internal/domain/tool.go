// Package domain contains the entities of the tool lending marketplace.
package domain

import (
	"strings"
	"time"
)

// Tool is an item an owner lends out to members of their association.
type Tool struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	ImageURL      string     `json:"image_url,omitempty"`
	ImageBlurHash string     `json:"image_blurhash,omitempty"`
	OwnerID       string     `json:"owner_id"`
	PricePerDay   *float64   `json:"price_per_day,omitempty"`
	Category      string     `json:"category"` // association the tool is listed under
	IsOnHold      bool       `json:"is_on_hold"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// NewTool carries the fields a caller supplies when listing a tool.
type NewTool struct {
	Name          string   `json:"name" validate:"notblank,max=200"`
	Description   string   `json:"description" validate:"notblank,max=5000"`
	ImageURL      string   `json:"image_url,omitempty" validate:"omitempty,url"`
	ImageBlurHash string   `json:"image_blurhash,omitempty"`
	OwnerID       string   `json:"owner_id" validate:"notblank"`
	PricePerDay   *float64 `json:"price_per_day,omitempty" validate:"omitempty,gte=0"`
	Category      string   `json:"category" validate:"notblank"`
}

// Trimmed returns a copy with surrounding whitespace removed from text fields.
func (n NewTool) Trimmed() NewTool {
	n.Name = strings.TrimSpace(n.Name)
	n.Description = strings.TrimSpace(n.Description)
	n.ImageURL = strings.TrimSpace(n.ImageURL)
	n.OwnerID = strings.TrimSpace(n.OwnerID)
	n.Category = strings.TrimSpace(n.Category)
	return n
}

// ToolPatch is a partial update. Nil fields are left untouched.
type ToolPatch struct {
	Name          *string  `json:"name,omitempty"`
	Description   *string  `json:"description,omitempty"`
	ImageURL      *string  `json:"image_url,omitempty"`
	ImageBlurHash *string  `json:"image_blurhash,omitempty"`
	PricePerDay   *float64 `json:"price_per_day,omitempty"`
	Category      *string  `json:"category,omitempty"`
	IsOnHold      *bool    `json:"is_on_hold,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ToolPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.ImageURL == nil &&
		p.ImageBlurHash == nil && p.PricePerDay == nil && p.Category == nil && p.IsOnHold == nil
}
