package wire

import "encoding/json"

// ClickOptions tunes the click command.
type ClickOptions struct {
	// Delay in milliseconds between scrolling the element into view and
	// dispatching the click. Zero means the default (100ms).
	Delay int `json:"delay,omitempty"`
}

// ClickParams are the parameters of CmdClick.
type ClickParams struct {
	Selector string       `json:"selector"`
	Options  ClickOptions `json:"options,omitempty"`
}

// TypeOptions tunes the type command.
type TypeOptions struct {
	// TypingDelay in milliseconds between characters. Zero means the
	// default (50ms).
	TypingDelay int `json:"typingDelay,omitempty"`
}

// TypeParams are the parameters of CmdType.
type TypeParams struct {
	Selector string      `json:"selector"`
	Text     string      `json:"text"`
	Options  TypeOptions `json:"options,omitempty"`
}

// NavigateParams are the parameters of CmdNavigate. Relative URLs are
// resolved against the guest document's origin.
type NavigateParams struct {
	URL string `json:"url"`
}

// ScriptParams are the parameters of CmdLoadScript.
type ScriptParams struct {
	URL string `json:"url"`
}

// ScrollParams are the parameters of CmdScroll.
type ScrollParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WaitParams are the parameters of CmdWait.
type WaitParams struct {
	MS int `json:"ms"`
}

// SelectorParams are the parameters of CmdGetElementInfo.
type SelectorParams struct {
	Selector string `json:"selector"`
}

// DecodeParams unmarshals a command envelope's raw params into dst.
func DecodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an element bounding box in viewport coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementInfo is the structured description returned by element commands.
// Text and Value are truncated by the agent before transmission.
type ElementInfo struct {
	TagName     string            `json:"tagName"`
	ID          string            `json:"id"`
	ClassName   string            `json:"className"`
	Text        string            `json:"text"`
	Value       string            `json:"value"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Placeholder string            `json:"placeholder"`
	Href        string            `json:"href"`
	Src         string            `json:"src"`
	Position    Rect              `json:"position"`
	Visible     bool              `json:"visible"`
	Attributes  map[string]string `json:"attributes"`
}

// EnvState is the result of CmdGetState.
type EnvState struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	ReadyState string `json:"readyState"`
	Viewport   Size   `json:"viewport"`
	Document   Size   `json:"document"`
	Timestamp  int64  `json:"timestamp"`
}
