package status

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Chat is a text component. Servers send the description as a plain string,
// a component object or an array of components; all three decode into Chat.
type Chat struct {
	Bold          *bool           `json:"bold,omitempty"`
	Italic        *bool           `json:"italic,omitempty"`
	Underlined    *bool           `json:"underlined,omitempty"`
	Strikethrough *bool           `json:"strikethrough,omitempty"`
	Obfuscated    *bool           `json:"obfuscated,omitempty"`
	Text          string          `json:"text"`
	Translate     string          `json:"translate,omitempty"`
	Keybind       string          `json:"keybind,omitempty"`
	Color         string          `json:"color,omitempty"`
	Font          string          `json:"font,omitempty"`
	Insertion     string          `json:"insertion,omitempty"`
	ClickEvent    json.RawMessage `json:"clickEvent,omitempty"`
	HoverEvent    json.RawMessage `json:"hoverEvent,omitempty"`
	Extra         []Chat          `json:"extra,omitempty"`
}

// UnmarshalJSON accepts a string, an object, an array or any other JSON primitive.
func (c *Chat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}

	switch b[0] {
	case '"':
		*c = Chat{}
		return json.Unmarshal(b, &c.Text)

	case '{':
		type component Chat
		var v component
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = Chat(v)
		return nil

	case '[':
		var parts []Chat
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*c = Chat{}
		if len(parts) == 0 {
			return nil
		}
		// the first element is the parent, the rest are its siblings
		*c = parts[0]
		c.Extra = append(c.Extra, parts[1:]...)
		return nil

	case 'n':
		*c = Chat{}
		return nil

	default:
		*c = Chat{Text: string(b)}
		return nil
	}
}

// PlainText flattens the component tree and strips legacy '§' formatting codes.
func (c Chat) PlainText() string {
	var sb strings.Builder
	c.writeText(&sb)

	return StripFormatting(sb.String())
}

func (c Chat) writeText(sb *strings.Builder) {
	switch {
	case c.Text != "":
		sb.WriteString(c.Text)
	case c.Translate != "":
		sb.WriteString(c.Translate)
	case c.Keybind != "":
		sb.WriteString(c.Keybind)
	}

	for _, e := range c.Extra {
		e.writeText(sb)
	}
}

// StripFormatting removes '§'-prefixed color and style codes from s.
func StripFormatting(s string) string {
	if !strings.ContainsRune(s, '§') {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	skip := false
	for _, r := range s {
		switch {
		case skip:
			skip = false
		case r == '§':
			skip = true
		default:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
