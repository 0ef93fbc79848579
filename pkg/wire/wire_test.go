package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEventKindTotality(t *testing.T) {
	for _, k := range EventKinds() {
		if got := ParseEventKind(string(k)); got != k {
			t.Fatalf("ParseEventKind(%q) = %q", k, got)
		}
	}
	for _, raw := range []string{"", "bogus", "CLICK", "user-action"} {
		if got := ParseEventKind(raw); got != EventOther {
			t.Fatalf("ParseEventKind(%q) = %q, want %q", raw, got, EventOther)
		}
	}
}

func TestCommandKindKnown(t *testing.T) {
	known := []CommandKind{CmdClick, CmdType, CmdNavigate, CmdGetState, CmdLoadScript, CmdScroll, CmdWait, CmdGetElementInfo, CmdScreenshot}
	for _, k := range known {
		if !k.Known() {
			t.Fatalf("%q should be known", k)
		}
	}
	if CommandKind("explode").Known() {
		t.Fatal("unknown command reported as known")
	}
}

func TestResponseConstructors(t *testing.T) {
	ok := NewResponse("cmd-1", map[string]any{"clicked": "#a"})
	if ok.Type != TypeResponse || ok.ID != "cmd-1" || !ok.Payload.Success || ok.Payload.Error != nil {
		t.Fatalf("unexpected success response: %+v", ok)
	}
	fail := NewErrorResponse("cmd-2", errors.New("boom"))
	if fail.ID != "cmd-2" || fail.Payload.Success || fail.Payload.Error == nil || *fail.Payload.Error != "boom" {
		t.Fatalf("unexpected error response: %+v", fail)
	}
}

func TestEventEnvelopeMessage(t *testing.T) {
	ev := EventEnvelope{
		Type:    TypeEvent,
		Payload: EventPayload{EventType: string(EventClick), Data: map[string]any{"message": "Clicked BUTTON"}},
	}
	if ev.Message() != "Clicked BUTTON" {
		t.Fatalf("Message() = %q", ev.Message())
	}
	if (EventEnvelope{}).Message() != "" {
		t.Fatal("empty envelope should have empty message")
	}
}

func TestEnvelopeDiscriminators(t *testing.T) {
	cmd := CommandEnvelope{Type: TypeCommand, ID: "x", Payload: CommandPayload{Command: string(CmdWait), Params: json.RawMessage(`{"ms":5}`)}}
	b, err := json.Marshal(cmd)
	if err != nil {
		t.Fatal(err)
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil || probe.Type != TypeCommand {
		t.Fatalf("probe type = %q, err = %v", probe.Type, err)
	}
}

func TestDecodeParams(t *testing.T) {
	var p ClickParams
	if err := DecodeParams(json.RawMessage(`{"selector":"#go","options":{"delay":10}}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Selector != "#go" || p.Options.Delay != 10 {
		t.Fatalf("unexpected params: %+v", p)
	}
	if err := DecodeParams(nil, &p); err != nil {
		t.Fatalf("empty params should decode to zero: %v", err)
	}
}

func TestIDGeneratorUnique(t *testing.T) {
	var g IDGenerator
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
