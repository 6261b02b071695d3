// Package notify formats Microsoft Teams message cards and delivers them to
// an incoming webhook without ever failing the caller.
package notify

import "encoding/json"

// Fact is one label/value row of a card.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Target is an OpenUri destination.
type Target struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// Header is an HttpPOST request header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is a MessageCard potentialAction.
type Action struct {
	Type    string   `json:"@type"`
	Name    string   `json:"name"`
	Targets []Target `json:"targets,omitempty"`
	Target  string   `json:"target,omitempty"`
	Body    string   `json:"body,omitempty"`
	Headers []Header `json:"headers,omitempty"`
}

// OpenURI builds a link button.
func OpenURI(name, uri string) Action {
	return Action{Type: "OpenUri", Name: name, Targets: []Target{{OS: "default", URI: uri}}}
}

// HTTPPost builds a button that POSTs body as JSON to target.
func HTTPPost(name, target string, body any) Action {
	b, _ := json.Marshal(body)
	return Action{
		Type:    "HttpPOST",
		Name:    name,
		Target:  target,
		Body:    string(b),
		Headers: []Header{{Name: "Content-Type", Value: "application/json"}},
	}
}

// Card is the content of one notification.
type Card struct {
	Title   string
	Text    string
	Facts   []Fact
	Actions []Action
}

// ThemeColor is the accent color of every card.
const ThemeColor = "0078D7"

type section struct {
	Facts []Fact `json:"facts"`
}

type messageCard struct {
	Type            string    `json:"@type"`
	Context         string    `json:"@context"`
	Summary         string    `json:"summary"`
	ThemeColor      string    `json:"themeColor"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	Sections        []section `json:"sections"`
	PotentialAction []Action  `json:"potentialAction"`
}

// MarshalJSON renders the card in the legacy MessageCard format accepted by
// Teams incoming webhooks.
func (c Card) MarshalJSON() ([]byte, error) {
	mc := messageCard{
		Type:            "MessageCard",
		Context:         "https://schema.org/extensions",
		Summary:         c.Title,
		ThemeColor:      ThemeColor,
		Title:           c.Title,
		Text:            c.Text,
		Sections:        []section{},
		PotentialAction: c.Actions,
	}
	if len(c.Facts) > 0 {
		mc.Sections = []section{{Facts: c.Facts}}
	}
	if mc.PotentialAction == nil {
		mc.PotentialAction = []Action{}
	}
	return json.Marshal(mc)
}

// Truncate shortens s to n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
