// Package card reads adaptive card attachments into a small element tree
// and renders them as plain text. Layout is best effort; unknown elements
// are skipped.
package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nkaluva9/health-chatbot/internal/activity"
)

// Action types.
const (
	ActionSubmit  = "Action.Submit"
	ActionOpenURL = "Action.OpenUrl"
)

var ErrNotACard = errors.New("not an adaptive card")

// Card is a parsed adaptive card.
type Card struct {
	Type    string    `json:"type"`
	Version string    `json:"version"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions"`
}

// Element is any body element. Only the fields the renderer uses are
// decoded.
type Element struct {
	Type        string    `json:"type"`
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"text,omitempty"`
	Weight      string    `json:"weight,omitempty"`
	URL         string    `json:"url,omitempty"`
	AltText     string    `json:"altText,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Facts       []Fact    `json:"facts,omitempty"`
	Columns     []Element `json:"columns,omitempty"`
	Items       []Element `json:"items,omitempty"`
	Choices     []Choice  `json:"choices,omitempty"`
}

type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type Choice struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action is a card action.
type Action struct {
	Type  string          `json:"type"`
	Title string          `json:"title"`
	URL   string          `json:"url,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Parse decodes an adaptive card document.
func Parse(content json.RawMessage) (*Card, error) {
	var c Card
	if err := json.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("parse card: %w", err)
	}
	if c.Type != "AdaptiveCard" {
		return nil, ErrNotACard
	}
	return &c, nil
}

// FromActivity parses every adaptive card attachment of a, skipping ones
// that fail to parse.
func FromActivity(a activity.Activity) []*Card {
	var cards []*Card
	for _, att := range a.Attachments {
		if att.ContentType != activity.AdaptiveCardContentType {
			continue
		}
		if c, err := Parse(att.Content); err == nil {
			cards = append(cards, c)
		}
	}
	return cards
}

// SubmitText is the message sent for a submit action:
// "Action: <data.action>", or "Action: submit" when data has no action.
// It reports false for actions that do not send a message.
func SubmitText(a Action) (string, bool) {
	if a.Type != ActionSubmit || len(a.Data) == 0 || string(a.Data) == "null" {
		return "", false
	}
	var data struct {
		Action any `json:"action"`
	}
	_ = json.Unmarshal(a.Data, &data)
	name := "submit"
	switch v := data.Action.(type) {
	case string:
		if v != "" {
			name = v
		}
	case float64, bool:
		name = fmt.Sprint(v)
	}
	return "Action: " + name, true
}

// Render lays the card out as plain text lines. Actions are numbered from 1
// in card order.
func Render(c *Card) []string {
	var lines []string
	for _, el := range c.Body {
		lines = renderElement(lines, el, "")
	}
	for i, a := range c.Actions {
		line := fmt.Sprintf("[%d] %s", i+1, a.Title)
		if a.Type == ActionOpenURL && a.URL != "" {
			line += " <" + a.URL + ">"
		}
		lines = append(lines, line)
	}
	return lines
}

func renderElement(lines []string, el Element, indent string) []string {
	switch el.Type {
	case "TextBlock":
		text := el.Text
		if strings.EqualFold(el.Weight, "Bolder") {
			text = strings.ToUpper(text)
		}
		lines = append(lines, indent+text)
	case "Image":
		label := el.AltText
		if label == "" {
			label = el.URL
		}
		lines = append(lines, indent+"[image] "+label)
	case "FactSet":
		for _, f := range el.Facts {
			lines = append(lines, indent+f.Title+" "+f.Value)
		}
	case "ColumnSet":
		for _, col := range el.Columns {
			lines = renderElement(lines, col, indent)
		}
	case "Column", "Container":
		for _, item := range el.Items {
			lines = renderElement(lines, item, indent)
		}
	case "Input.ChoiceSet":
		for _, ch := range el.Choices {
			lines = append(lines, indent+"( ) "+ch.Title)
		}
	case "Input.Text":
		lines = append(lines, indent+"[ "+el.Placeholder+" ]")
	}
	return lines
}
