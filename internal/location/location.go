// Package location collapses free-text location descriptions into coarse screen regions.
package location

import (
	"strings"

	"github.com/bdougie/uitraps/internal/rules"
)

// Unknown is returned for empty location text
const Unknown = "unknown"

var Vertical = rules.Table{
	Name: "vertical",
	Rules: []rules.Rule{
		{Tag: "top", Keywords: []string{"top", "upper", "above", "header"}},
		{Tag: "bottom", Keywords: []string{"bottom", "lower", "below", "footer"}},
	},
}

var Horizontal = rules.Table{
	Name: "horizontal",
	Rules: []rules.Rule{
		{Tag: "left", Keywords: []string{"left", "west", "start"}},
		{Tag: "right", Keywords: []string{"right", "east", "end"}},
	},
}

var Region = rules.Table{
	Name: "region",
	Rules: []rules.Rule{
		{Tag: "header", Keywords: []string{"header", "navigation", "nav bar", "top bar", "navbar", "menu bar"}},
		{Tag: "footer", Keywords: []string{"footer", "bottom bar", "page footer"}},
		{Tag: "sidebar", Keywords: []string{"sidebar", "side panel", "side bar", "side menu"}},
		{Tag: "toolbar", Keywords: []string{"toolbar", "tool bar", "action bar"}},
		{Tag: "modal", Keywords: []string{"modal", "dialog", "popup", "overlay"}},
	},
}

// Location is the three-axis classification of a location description
type Location struct {
	Vertical   string
	Horizontal string
	Region     string
}

// Classify resolves each axis independently, defaulting to middle, center and none.
func Classify(raw string) Location {
	return Location{
		Vertical:   Vertical.MatchOr(raw, "middle"),
		Horizontal: Horizontal.MatchOr(raw, "center"),
		Region:     Region.MatchOr(raw, "none"),
	}
}

// Tag collapses the location into its tag string, e.g. "top-left:header"
func (l Location) Tag() string {
	var suffix string
	if l.Region != "" && l.Region != "none" {
		suffix = ":" + l.Region
	}

	switch {
	case l.Vertical == "middle" && l.Horizontal == "center":
		return "center" + suffix
	case l.Vertical == "middle":
		return l.Horizontal + suffix
	case l.Horizontal == "center":
		return l.Vertical + "-center" + suffix
	default:
		return l.Vertical + "-" + l.Horizontal + suffix
	}
}

// Normalize maps a raw location description to its tag. Empty input maps to Unknown.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return Unknown
	}
	return Classify(raw).Tag()
}
