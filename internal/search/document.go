// Package search provides full-text search over the tool catalog using Bleve.
// The index is derived data: it is fed from the tool repository and can be
// rebuilt from the local store at any time.
package search

import "github.com/toollender/toollender/internal/domain"

// ToolDocument is the indexed form of a tool.
type ToolDocument struct {
	ID          string
	Name        string
	Description string
	Category    string
	OwnerID     string
	OnHold      bool
	PricePerDay float64 // zero when unset
	CreatedAt   int64   // unix millis, zero when unknown
}

// ToMap converts the document to a map keyed by the mapped field names.
func (d *ToolDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":       d.ID,
		"name":     d.Name,
		"category": d.Category,
		"owner_id": d.OwnerID,
		"on_hold":  d.OnHold,
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.PricePerDay > 0 {
		m["price_per_day"] = d.PricePerDay
	}
	if d.CreatedAt > 0 {
		m["created_at"] = d.CreatedAt
	}
	return m
}

// ToolToDocument converts a tool.
func ToolToDocument(t *domain.Tool) *ToolDocument {
	doc := &ToolDocument{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		OwnerID:     t.OwnerID,
		OnHold:      t.IsOnHold,
	}
	if t.PricePerDay != nil {
		doc.PricePerDay = *t.PricePerDay
	}
	if t.CreatedAt != nil {
		doc.CreatedAt = t.CreatedAt.UnixMilli()
	}
	return doc
}
