package domain

import "time"

// ControlStyle hints how an answer control should be rendered.
type ControlStyle string

const (
	StylePrimary ControlStyle = "primary"
	StyleSuccess ControlStyle = "success"
	StyleDanger  ControlStyle = "danger"
)

// ControlPrefix marks answer controls so the gateway can route their events.
const ControlPrefix = "quiz_"

// Field is a labeled section of a presentation.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Control is one answer button.
type Control struct {
	Token string       `json:"token"`
	Label string       `json:"label"`
	Style ControlStyle `json:"style"`
}

// Presentation is the platform-neutral embed posted into a channel.
type Presentation struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Fields      []Field   `json:"fields,omitempty"`
	Controls    []Control `json:"controls,omitempty"`
	Footer      string    `json:"footer,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
