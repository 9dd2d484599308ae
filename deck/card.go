package deck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Attribute is one named integer stat on a card.
type Attribute struct {
	Name  string
	Value int
}

// Attributes is an ordered attribute mapping. It encodes as a JSON object and keeps the key
// order of the source document, which the scripted opponent relies on to break ties.
type Attributes []Attribute

// Get returns the value of the named attribute.
func (a Attributes) Get(name string) (int, bool) {
	for _, at := range a {
		if at.Name == name {
			return at.Value, true
		}
	}
	return 0, false
}

// Names returns attribute names in order.
func (a Attributes) Names() []string {
	names := make([]string, len(a))
	for i, at := range a {
		names[i] = at.Name
	}
	return names
}

// MarshalJSON encodes the attributes as an object in slice order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, at := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(at.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", at.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of integer values, preserving key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}
	out := Attributes{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected key, got %v", tok)
		}
		var v int
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("attributes: %q: %w", name, err)
		}
		out = append(out, Attribute{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// DisplayName strips a trailing unit annotation, e.g. "Speed (km/h)" → "Speed".
func DisplayName(attr string) string {
	if i := strings.Index(attr, "("); i >= 0 {
		attr = attr[:i]
	}
	return strings.TrimSpace(attr)
}

// Card is a single playing card.
type Card struct {
	Name       string     `json:"name"`
	Icon       string     `json:"icon"`
	Attributes Attributes `json:"attributes"`
}

// Deck is a named set of cards that share one attribute schema.
type Deck struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Cards       []Card `json:"cards"`
}

// Clone returns a deep copy so callers can shuffle or edit cards without touching d.
func (d Deck) Clone() Deck {
	out := d
	out.Cards = make([]Card, len(d.Cards))
	for i, c := range d.Cards {
		c.Attributes = append(Attributes(nil), c.Attributes...)
		out.Cards[i] = c
	}
	return out
}
