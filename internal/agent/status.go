package agent

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/scalewob/wobbridge/internal/logx"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// State is the agent's externally visible status.
type State struct {
	State             string    `json:"state"`
	ConnectedToServer bool      `json:"connected_to_server"`
	LastError         string    `json:"last_error"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	AgentID           string    `json:"agent_id"`
	AgentName         string    `json:"agent_name"`
	Environment       string    `json:"environment"`
	Version           string    `json:"version"`
}

var (
	stateMu   sync.RWMutex
	stateData = State{State: "disconnected", Version: Version}
)

func SetAgentInfo(id, name, environment string) {
	stateMu.Lock()
	stateData.AgentID = id
	stateData.AgentName = name
	stateData.Environment = environment
	stateData.Version = Version
	stateMu.Unlock()
}

func SetState(s string) {
	stateMu.Lock()
	stateData.State = s
	stateMu.Unlock()
}

func SetConnected(v bool) {
	stateMu.Lock()
	stateData.ConnectedToServer = v
	stateMu.Unlock()
}

func SetLastError(err string) {
	stateMu.Lock()
	stateData.LastError = err
	stateMu.Unlock()
}

func SetLastHeartbeat(t time.Time) {
	stateMu.Lock()
	stateData.LastHeartbeat = t
	stateMu.Unlock()
}

func GetState() State {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return stateData
}

type systemInfo struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
}

func readSystemInfo() systemInfo {
	var si systemInfo
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		si.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		si.MemTotalBytes = vm.Total
		si.MemUsedBytes = vm.Used
	}
	return si
}

// StartStatusServer starts an HTTP server exposing /status and /version.
// It returns the address it is listening on.
func StartStatusServer(ctx context.Context, addr string) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			State
			System systemInfo `json:"system"`
		}{GetState(), readSystemInfo()})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": Version})
	})

	srv := &http.Server{Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}
