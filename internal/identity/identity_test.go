package identity

import (
	"testing"

	"github.com/bdougie/uitraps/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name  string
		issue models.Issue
		want  Identity
	}{
		{
			name:  "search icon",
			issue: models.Issue{Location: "search icon", Problem: "Low contrast makes it hard to see"},
			want:  Identity{Type: "icon", Name: "search"},
		},
		{
			name:  "type table order beats text order",
			issue: models.Issue{Location: "Cart icon next to the checkout button"},
			want:  Identity{Type: "button", Name: "cart"},
		},
		{
			name:  "login link",
			issue: models.Issue{Location: "Sign In link", Problem: "too small"},
			want:  Identity{Type: "link", Name: "login"},
		},
		{
			name:  "regex fallback",
			issue: models.Issue{Location: "the foo button", Problem: "is grey"},
			want:  Identity{Type: "button", Name: "foo"},
		},
		{
			name:  "unidentifiable",
			issue: models.Issue{Location: "hero area", Problem: "low contrast"},
			want:  Identity{Type: DefaultType, Name: UnknownName},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.issue))
		})
	}
}

func TestIdentity_Known(t *testing.T) {
	assert.True(t, Identity{Type: "icon", Name: "search"}.Known())
	assert.False(t, Identity{Type: "icon", Name: UnknownName}.Known())
}

func TestIdentity_Description(t *testing.T) {
	assert.Equal(t, "search icon", Identity{Type: "icon", Name: "search"}.Description())
	assert.Equal(t, "UI element", Identity{Type: DefaultType, Name: UnknownName}.Description())
}
