package model

import "encoding/json"

// Action types.
const (
	ActionClick  = "click"
	ActionInput  = "input"
	ActionSelect = "select"
	ActionScroll = "scroll"
	ActionKey    = "key"
)

// Modifiers are the modifier keys held during an action.
type Modifiers struct {
	Alt   bool `json:"alt"`
	Ctrl  bool `json:"ctrl"`
	Meta  bool `json:"meta"`
	Shift bool `json:"shift"`
}

// Pointer describes the pointer state of a click.
type Pointer struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Button    int       `json:"button"`
	Modifiers Modifiers `json:"modifiers"`
}

// KeyInfo describes a recorded key press.
type KeyInfo struct {
	Key       string    `json:"key"`
	Code      string    `json:"code,omitempty"`
	Modifiers Modifiers `json:"modifiers"`
}

// Action is the tagged union of recorded actions. Only the fields belonging
// to Type are serialized.
type Action struct {
	Type        string
	Pointer     *Pointer
	Target      *ElementRef
	Value       string
	Redacted    bool
	OptionValue string
	DX          float64
	DY          float64
	Keys        string
	KeyInfo     *KeyInfo
}

type actionWire struct {
	Type        string      `json:"type"`
	Pointer     *Pointer    `json:"pointer,omitempty"`
	Target      *ElementRef `json:"target_ref,omitempty"`
	Value       *string     `json:"value,omitempty"`
	Redacted    bool        `json:"redacted,omitempty"`
	OptionValue *string     `json:"option_value,omitempty"`
	DX          *float64    `json:"dx,omitempty"`
	DY          *float64    `json:"dy,omitempty"`
	Keys        string      `json:"keys,omitempty"`
	KeyInfo     *KeyInfo    `json:"key_info,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	w := actionWire{Type: a.Type, Target: a.Target}
	switch a.Type {
	case ActionClick:
		w.Pointer = a.Pointer
	case ActionInput:
		v := a.Value
		w.Value = &v
		w.Redacted = a.Redacted
	case ActionSelect:
		v := a.OptionValue
		w.OptionValue = &v
	case ActionScroll:
		dx, dy := a.DX, a.DY
		w.DX, w.DY = &dx, &dy
		w.Target = nil
	case ActionKey:
		w.Keys = a.Keys
		w.KeyInfo = a.KeyInfo
	}
	return json.Marshal(w)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Action{
		Type:     w.Type,
		Pointer:  w.Pointer,
		Target:   w.Target,
		Redacted: w.Redacted,
		Keys:     w.Keys,
		KeyInfo:  w.KeyInfo,
	}
	if w.Value != nil {
		a.Value = *w.Value
	}
	if w.OptionValue != nil {
		a.OptionValue = *w.OptionValue
	}
	if w.DX != nil {
		a.DX = *w.DX
	}
	if w.DY != nil {
		a.DY = *w.DY
	}
	return nil
}
