// Package identity derives a coarse (type, name) identity for the UI element an
// issue talks about, so sightings of the same element can be grouped across frames.
package identity

import (
	"regexp"
	"strings"

	"github.com/bdougie/uitraps/internal/models"
	"github.com/bdougie/uitraps/internal/rules"
)

const (
	DefaultType = "element"
	UnknownName = "unknown"
)

var ElementTypes = rules.Table{
	Name: "element_type",
	Rules: []rules.Rule{
		{Tag: "button", Keywords: []string{"button", "btn", "cta"}},
		{Tag: "link", Keywords: []string{"link", "anchor", "href"}},
		{Tag: "icon", Keywords: []string{"icon", "symbol", "glyph"}},
		{Tag: "menu", Keywords: []string{"menu", "dropdown", "nav", "navigation"}},
		{Tag: "field", Keywords: []string{"field", "input", "textbox", "text box", "form field"}},
		{Tag: "toggle", Keywords: []string{"toggle", "switch", "checkbox", "check box"}},
		{Tag: "search", Keywords: []string{"search", "find", "lookup"}},
		{Tag: "tab", Keywords: []string{"tab", "tabs"}},
		{Tag: "label", Keywords: []string{"label", "text", "heading", "title"}},
		{Tag: "image", Keywords: []string{"image", "img", "photo", "picture", "logo"}},
	},
}

var ElementNames = rules.Table{
	Name: "element_name",
	Rules: []rules.Rule{
		{Tag: "search", Keywords: []string{"search", "find", "lookup", "magnifying"}},
		{Tag: "login", Keywords: []string{"login", "log in", "sign in", "signin"}},
		{Tag: "logout", Keywords: []string{"logout", "log out", "sign out", "signout"}},
		{Tag: "settings", Keywords: []string{"settings", "preferences", "config", "gear", "cog"}},
		{Tag: "profile", Keywords: []string{"profile", "account", "user", "avatar"}},
		{Tag: "home", Keywords: []string{"home", "main", "dashboard", "start"}},
		{Tag: "back", Keywords: []string{"back", "return", "previous"}},
		{Tag: "close", Keywords: []string{"close", "dismiss", "cancel", "x button"}},
		{Tag: "menu", Keywords: []string{"menu", "hamburger", "three lines", "≡"}},
		{Tag: "cart", Keywords: []string{"cart", "basket", "shopping", "bag"}},
		{Tag: "help", Keywords: []string{"help", "support", "faq", "question"}},
		{Tag: "notification", Keywords: []string{"notification", "alert", "bell", "notify"}},
		{Tag: "filter", Keywords: []string{"filter", "sort", "refine"}},
		{Tag: "edit", Keywords: []string{"edit", "modify", "change", "pencil"}},
		{Tag: "delete", Keywords: []string{"delete", "remove", "trash", "bin"}},
		{Tag: "add", Keywords: []string{"add", "new", "create", "plus", "+"}},
		{Tag: "save", Keywords: []string{"save", "submit", "confirm", "done"}},
		{Tag: "share", Keywords: []string{"share", "send", "export"}},
		{Tag: "refresh", Keywords: []string{"refresh", "reload", "update"}},
	},
}

// nounBefore captures the word in front of a generic control noun, e.g. "the foo button"
var nounBefore = regexp.MustCompile(`(?:the\s+)?(\w+)\s+(?:button|icon|link|control|element)`)

// Identity is the grouping key for an element across frames
type Identity struct {
	Type string
	Name string
}

// Known reports whether the element could be named and so can be tracked
func (id Identity) Known() bool {
	return id.Name != "" && id.Name != UnknownName
}

// Description renders the identity as "<name> <type>"
func (id Identity) Description() string {
	desc := strings.TrimSpace(id.Name + " " + id.Type)
	if desc == UnknownName+" "+DefaultType {
		return "UI element"
	}
	return desc
}

// FromText resolves the identity from already combined issue text
func FromText(text string) Identity {
	text = strings.ToLower(text)

	id := Identity{
		Type: ElementTypes.MatchOr(text, DefaultType),
		Name: ElementNames.MatchOr(text, UnknownName),
	}
	if id.Name == UnknownName {
		if m := nounBefore.FindStringSubmatch(text); m != nil {
			id.Name = m[1]
		}
	}
	return id
}

// Of derives the identity from an issue's location and problem text
func Of(issue models.Issue) Identity {
	return FromText(issue.Location + " " + issue.Problem)
}
