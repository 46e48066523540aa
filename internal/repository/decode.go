package repository

import (
	"strings"
	"time"

	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/remote"
)

// Document field names. Older documents use the legacy names.
const (
	fieldName          = "name"
	fieldDescription   = "description"
	fieldImageURL      = "imageURL"
	fieldImageBlurHash = "imageBlurHash"
	fieldOwnerID       = "ownerId"
	fieldPricePerDay   = "pricePerDay"
	fieldCategory      = "category"
	fieldIsOnHold      = "isOnHold"
	fieldCreatedAt     = "createdAt"
	fieldEmail         = "email"
	fieldPhoneNumber   = "phoneNumber"
	fieldAddress       = "address"
	fieldAssociationID = "associationId"
	fieldKey           = "key"

	legacyOwnerUID    = "ownerUID"
	legacyAssociation = "association"
	legacyTimestamp   = "timestamp"
	legacyPrice       = "price"
)

// decodeTool maps a tools document. name, description, ownerId and category
// are required; everything else has a default.
func decodeTool(doc remote.Document) (domain.Tool, error) {
	f := doc.Fields
	t := domain.Tool{ID: doc.ID}

	var missing []string
	require := func(dst *string, names ...string) {
		v, ok := stringField(f, names...)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, names[0])
			return
		}
		*dst = v
	}
	require(&t.Name, fieldName)
	require(&t.Description, fieldDescription)
	require(&t.OwnerID, fieldOwnerID, legacyOwnerUID)
	require(&t.Category, fieldCategory)
	if len(missing) > 0 {
		return domain.Tool{}, domainerrors.Decodef("tool %s is missing %s", doc.ID, strings.Join(missing, ", "))
	}

	t.ImageURL, _ = stringField(f, fieldImageURL)
	t.ImageBlurHash, _ = stringField(f, fieldImageBlurHash)
	if p, ok := numberField(f, fieldPricePerDay, legacyPrice); ok {
		t.PricePerDay = &p
	}
	t.IsOnHold, _ = boolField(f, fieldIsOnHold)
	if ts, ok := timeField(f, fieldCreatedAt, legacyTimestamp); ok {
		t.CreatedAt = &ts
	} else if !doc.CreateTime.IsZero() {
		ct := doc.CreateTime.UTC()
		t.CreatedAt = &ct
	}
	return t, nil
}

func newToolFields(n domain.NewTool, now time.Time) remote.Fields {
	f := remote.Fields{
		fieldName:        n.Name,
		fieldDescription: n.Description,
		fieldOwnerID:     n.OwnerID,
		fieldCategory:    n.Category,
		fieldIsOnHold:    false,
		fieldCreatedAt:   now.UTC().Format(timestampLayout),
	}
	if n.ImageURL != "" {
		f[fieldImageURL] = n.ImageURL
	}
	if n.ImageBlurHash != "" {
		f[fieldImageBlurHash] = n.ImageBlurHash
	}
	if n.PricePerDay != nil {
		f[fieldPricePerDay] = *n.PricePerDay
	}
	return f
}

func toolPatchFields(p domain.ToolPatch) remote.Fields {
	f := remote.Fields{}
	setString(f, fieldName, p.Name)
	setString(f, fieldDescription, p.Description)
	setString(f, fieldImageURL, p.ImageURL)
	setString(f, fieldImageBlurHash, p.ImageBlurHash)
	setString(f, fieldCategory, p.Category)
	if p.PricePerDay != nil {
		f[fieldPricePerDay] = *p.PricePerDay
	}
	if p.IsOnHold != nil {
		f[fieldIsOnHold] = *p.IsOnHold
	}
	return f
}

// decodeUser maps a users document. Every field is optional.
func decodeUser(doc remote.Document) (domain.UserProfile, error) {
	f := doc.Fields
	u := domain.UserProfile{ID: doc.ID}
	u.Name, _ = stringField(f, fieldName)
	u.Email, _ = stringField(f, fieldEmail)
	u.PhoneNumber, _ = stringField(f, fieldPhoneNumber)
	u.Address, _ = stringField(f, fieldAddress)
	u.AssociationID, _ = stringField(f, fieldAssociationID, legacyAssociation)
	if strings.TrimSpace(u.AssociationID) == "" {
		u.AssociationID = domain.AllAssociations
	}
	if strings.TrimSpace(u.Name) == "" {
		u.Name = domain.DefaultUserName
	}
	return u, nil
}

func newUserFields(n domain.NewUserProfile) remote.Fields {
	f := remote.Fields{
		fieldName:          n.Name,
		fieldEmail:         n.Email,
		fieldAssociationID: n.AssociationID,
	}
	if n.PhoneNumber != "" {
		f[fieldPhoneNumber] = n.PhoneNumber
	}
	if n.Address != "" {
		f[fieldAddress] = n.Address
	}
	return f
}

func userPatchFields(p domain.UserPatch) remote.Fields {
	f := remote.Fields{}
	setString(f, fieldName, p.Name)
	setString(f, fieldPhoneNumber, p.PhoneNumber)
	setString(f, fieldAddress, p.Address)
	setString(f, fieldAssociationID, p.AssociationID)
	return f
}

func decodeAssociation(doc remote.Document) (domain.Association, error) {
	name, ok := stringField(doc.Fields, fieldName)
	if !ok || strings.TrimSpace(name) == "" {
		return domain.Association{}, domainerrors.Decodef("association %s has no name", doc.ID)
	}
	return domain.Association{Name: name}, nil
}

func setString(f remote.Fields, name string, v *string) {
	if v != nil {
		f[name] = strings.TrimSpace(*v)
	}
}

// stringField returns the first of names present as a string.
func stringField(f remote.Fields, names ...string) (string, bool) {
	for _, n := range names {
		if s, ok := f[n].(string); ok {
			return s, true
		}
	}
	return "", false
}

func numberField(f remote.Fields, names ...string) (float64, bool) {
	for _, n := range names {
		switch v := f[n].(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

func boolField(f remote.Fields, names ...string) (bool, bool) {
	for _, n := range names {
		if b, ok := f[n].(bool); ok {
			return b, true
		}
	}
	return false, false
}

// timestampLayout is RFC 3339 with a fixed-width fraction, so stored
// timestamps order correctly as strings on the remote side.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeField accepts RFC 3339 strings, time.Time values and unix seconds.
func timeField(f remote.Fields, names ...string) (time.Time, bool) {
	for _, n := range names {
		switch v := f[n].(type) {
		case time.Time:
			return v.UTC(), true
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return ts.UTC(), true
			}
		case float64:
			sec := int64(v)
			return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC(), true
		case int64:
			return time.Unix(v, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
