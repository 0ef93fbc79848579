package ctrl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scalewob/wobbridge/pkg/wire"
)

func liveAgent(id string) *Agent {
	return NewAgent(id)
}

// serveAgent answers every command from the Send channel via fn.
func serveAgent(ag *Agent, fn func(wire.CommandEnvelope) wire.ResponseEnvelope) {
	go func() {
		for msg := range ag.Send {
			cmd, ok := msg.(wire.CommandEnvelope)
			if !ok {
				continue
			}
			go func(cmd wire.CommandEnvelope) {
				ag.Resolve(fn(cmd))
			}(cmd)
		}
	}()
}

func TestDispatcherCorrelation(t *testing.T) {
	reg := NewRegistry()
	ag := liveAgent("a1")
	reg.Add(ag)
	serveAgent(ag, func(cmd wire.CommandEnvelope) wire.ResponseEnvelope {
		return wire.NewResponse(cmd.ID, map[string]any{"echo": cmd.Payload.Command})
	})

	disp := NewDispatcher(reg, time.Second)
	resp, err := disp.Send(context.Background(), "a1", wire.CmdGetState, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Payload.Success {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatcherOutOfOrderResponses(t *testing.T) {
	reg := NewRegistry()
	ag := liveAgent("a1")
	reg.Add(ag)

	// get-state answers slower than wait; each caller must still get its
	// own response.
	serveAgent(ag, func(cmd wire.CommandEnvelope) wire.ResponseEnvelope {
		if cmd.Payload.Command == string(wire.CmdGetState) {
			time.Sleep(100 * time.Millisecond)
			return wire.NewResponse(cmd.ID, "slow")
		}
		return wire.NewResponse(cmd.ID, "fast")
	})

	disp := NewDispatcher(reg, time.Second)
	type result struct {
		resp wire.ResponseEnvelope
		err  error
	}
	slowCh := make(chan result, 1)
	go func() {
		resp, err := disp.Send(context.Background(), "a1", wire.CmdGetState, nil)
		slowCh <- result{resp, err}
	}()
	time.Sleep(10 * time.Millisecond)
	fastResp, err := disp.Send(context.Background(), "a1", wire.CmdWait, wire.WaitParams{MS: 1})
	if err != nil {
		t.Fatal(err)
	}
	slow := <-slowCh
	if slow.err != nil {
		t.Fatal(slow.err)
	}
	if fastResp.Payload.Result != "fast" || slow.resp.Payload.Result != "slow" {
		t.Fatalf("responses crossed: fast=%v slow=%v", fastResp.Payload.Result, slow.resp.Payload.Result)
	}
}

func TestDispatcherTimeout(t *testing.T) {
	reg := NewRegistry()
	ag := liveAgent("mute")
	reg.Add(ag)
	// Nothing consumes responses; the agent never answers.
	go func() {
		for range ag.Send {
		}
	}()

	disp := NewDispatcher(reg, 50*time.Millisecond)
	_, err := disp.Send(context.Background(), "mute", wire.CmdGetState, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// A response arriving after the timeout is discarded, not delivered.
	if ag.Resolve(wire.NewResponse("whatever", nil)) {
		t.Fatal("late response matched a pending command")
	}
}

func TestDispatcherAgentNotFound(t *testing.T) {
	disp := NewDispatcher(NewRegistry(), time.Second)
	_, err := disp.Send(context.Background(), "ghost", wire.CmdGetState, nil)
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("err = %v, want ErrAgentNotFound", err)
	}
}
