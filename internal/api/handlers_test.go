package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/scalewob/wobbridge/internal/ctrl"
)

func listAgents(t *testing.T, reg *ctrl.Registry, url string) []AgentInfo {
	t.Helper()
	req := httptest.NewRequest("GET", url, nil)
	rec := httptest.NewRecorder()
	ListAgentsHandler(reg)(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []AgentInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestListAgentsEnvironmentFilter(t *testing.T) {
	reg := ctrl.NewRegistry()
	a := ctrl.NewAgent("a1")
	a.Environment = "demo-shop"
	b := ctrl.NewAgent("a2")
	b.Environment = "demo-bank"
	reg.Add(a)
	reg.Add(b)

	if got := listAgents(t, reg, "/api/agents"); len(got) != 2 {
		t.Fatalf("unfiltered list has %d agents", len(got))
	}
	got := listAgents(t, reg, "/api/agents?environment=demo-shop")
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("filtered list = %+v", got)
	}
	if got := listAgents(t, reg, "/api/agents?environment=nope"); len(got) != 0 {
		t.Fatalf("unknown environment returned %d agents", len(got))
	}
}
