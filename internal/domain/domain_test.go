package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithAll_InsertsOnceAtFront(t *testing.T) {
	list := []Association{{Name: "Bispebjerg"}, {Name: "Nørrebro"}}

	got := WithAll(list)
	assert.Equal(t, []Association{{Name: "All"}, {Name: "Bispebjerg"}, {Name: "Nørrebro"}}, got)

	again := WithAll(got)
	assert.Equal(t, got, again)
}

func TestWithAll_ExactMatchOnly(t *testing.T) {
	got := WithAll([]Association{{Name: "all"}})

	assert.Equal(t, []Association{{Name: "All"}, {Name: "all"}}, got)
}

func TestIsAll(t *testing.T) {
	assert.True(t, IsAll(""))
	assert.True(t, IsAll("All"))
	assert.False(t, IsAll("all"))
	assert.False(t, IsAll("Amager"))
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile("user-1")

	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "Bruger", p.Name)
	assert.Equal(t, "All", p.AssociationID)
}

func TestNewUserProfile_TrimmedDefaultsAssociation(t *testing.T) {
	got := NewUserProfile{Name: "  Mette ", Email: " mette@example.dk "}.Trimmed()

	assert.Equal(t, "Mette", got.Name)
	assert.Equal(t, "mette@example.dk", got.Email)
	assert.Equal(t, AllAssociations, got.AssociationID)
}

func TestPatches_IsEmpty(t *testing.T) {
	assert.True(t, ToolPatch{}.IsEmpty())
	hold := true
	assert.False(t, ToolPatch{IsOnHold: &hold}.IsEmpty())

	assert.True(t, UserPatch{}.IsEmpty())
	name := "Ole"
	assert.False(t, UserPatch{Name: &name}.IsEmpty())
}

func TestSession_IsExpired(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now}

	assert.True(t, s.IsExpired(now))
	assert.False(t, s.IsExpired(now.Add(-time.Second)))
}
