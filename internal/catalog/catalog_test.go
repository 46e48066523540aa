package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/toollender/toollender/internal/domain"
)

func at(day int) *time.Time {
	t := time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func ids(tools []domain.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.ID
	}
	return out
}

func TestBrowse_CategoryFilterKeepsOrder(t *testing.T) {
	tools := []domain.Tool{
		{ID: "1", Name: "Drill", Category: "X"},
		{ID: "2", Name: "Saw", Category: "Y"},
		{ID: "3", Name: "Axe", Category: "X"},
	}

	got := Browse(tools, Filter{Association: "X"})

	assert.Equal(t, []string{"1", "3"}, ids(got))
	assert.Equal(t, "2", tools[1].ID, "input untouched")
}

func TestBrowse_AllMeansNoFilter(t *testing.T) {
	tools := []domain.Tool{
		{ID: "1", Category: "X"},
		{ID: "2", Category: "Y"},
	}

	assert.Equal(t, []string{"1", "2"}, ids(Browse(tools, Filter{Association: "All"})))
	assert.Equal(t, []string{"1", "2"}, ids(Browse(tools, Filter{})))
}

func TestBrowse_Query(t *testing.T) {
	tools := []domain.Tool{
		{ID: "1", Name: "Cordless Drill", Description: "18V"},
		{ID: "2", Name: "Saw", Description: "Good for DRILLING holes? no"},
		{ID: "3", Name: "Ladder", Description: "3 m"},
	}

	assert.Equal(t, []string{"1", "2"}, ids(Browse(tools, Filter{Query: " drill "})))
	assert.Empty(t, Browse(tools, Filter{Query: "hammer"}))
}

func TestBrowse_HideOnHold(t *testing.T) {
	tools := []domain.Tool{
		{ID: "1", IsOnHold: true},
		{ID: "2"},
	}

	assert.Equal(t, []string{"2"}, ids(Browse(tools, Filter{HideOnHold: true})))
	assert.Len(t, Browse(tools, Filter{}), 2)
}

func TestBrowse_Sort(t *testing.T) {
	tools := []domain.Tool{
		{ID: "1", Name: "saw", CreatedAt: at(2)},
		{ID: "2", Name: "Axe"},
		{ID: "3", Name: "drill", CreatedAt: at(5)},
		{ID: "4", Name: "Bench", CreatedAt: at(1)},
	}

	assert.Equal(t, []string{"2", "4", "3", "1"}, ids(Browse(tools, Filter{Sort: SortName})))
	assert.Equal(t, []string{"3", "1", "4", "2"}, ids(Browse(tools, Filter{Sort: SortNewest})))
	assert.Equal(t, []string{"4", "1", "3", "2"}, ids(Browse(tools, Filter{Sort: SortOldest})))
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(Browse(tools, Filter{})))
}

func TestValidSort(t *testing.T) {
	assert.True(t, ValidSort(""))
	assert.True(t, ValidSort("newest"))
	assert.False(t, ValidSort("price"))
}
