package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/pupil-tools-mcp/internal/config"
	"github.com/ironsheep/pupil-tools-mcp/internal/probe"
)

// testConfig keeps tables small and frames unblurred so detections are
// exact on synthetic discs.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Coarse = probe.Params{
		MinRadius:       10,
		MaxRadius:       30,
		RadiusStep:      2,
		OrientationStep: 5,
		DistanceStep:    1,
		Depth:           3,
	}
	cfg.Search.Workers = 4
	cfg.Preprocess.BlurSigma = 0
	cfg.Hough.MinRadius = 10
	cfg.Hough.MaxRadius = 30
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	if s.cache == nil {
		t.Fatal("New() did not initialize cache")
	}
	if s.detector == nil || s.hough == nil {
		t.Fatal("New() did not build detectors")
	}
	params, _ := s.detector.Params()
	if params != probe.DefaultParams() {
		t.Errorf("params: got %+v, want defaults", params)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Search.Workers = 0

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for zero workers")
	}
	if !errors.Is(err, probe.ErrConfiguration) {
		t.Errorf("error should wrap ErrConfiguration: %v", err)
	}
}

func TestNew_LoadsTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.gob.gz")

	trained := newTestServer(t)
	f := discTestFrame(t, trained)
	truth := probe.Circle(80, 60, 20.5)
	if _, err := trained.detector.Train(f, truth, 0.5); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if err := trained.detector.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	want, _ := trained.detector.Stats()

	cfg := testConfig()
	cfg.Tables.Path = path
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, _ := s.detector.Stats()
	if got != want {
		t.Errorf("loaded stats: got %+v, want %+v", got, want)
	}
}

func TestNew_MissingTablesFileIsIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Tables.Path = filepath.Join(t.TempDir(), "not-yet-saved.gob.gz")
	if _, err := New(cfg); err != nil {
		t.Fatalf("New should ignore a missing table file: %v", err)
	}
}

func TestNew_MismatchedTablesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.gob.gz")
	if err := newTestServer(t).detector.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cfg := testConfig()
	cfg.Coarse.MaxRadius = 40
	cfg.Tables.Path = path
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error loading tables with a different geometry")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
			if req.JSONRPC != "2.0" {
				t.Errorf("JSONRPC: got %s, want 2.0", req.JSONRPC)
			}
		})
	}
}

func TestMCPResponse_WithError(t *testing.T) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Error: &MCPError{
			Code:    -32601,
			Message: "Method not found",
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Errorf("error response should omit result: %s", data)
	}

	var decoded MCPResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Error == nil {
		t.Fatal("Error should not be nil")
	}
	if decoded.Error.Code != -32601 {
		t.Errorf("Error.Code: got %d, want -32601", decoded.Error.Code)
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := newTestServer(t)
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
	}

	resp := s.handleRequest(req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != 1 {
		t.Errorf("ID: got %v, want 1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}

	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "pupil-tools-mcp" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != Version {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: "ping-1", Method: "ping"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != "ping-1" {
		t.Errorf("ID: got %v, want ping-1", resp.ID)
	}
}

func TestHandleRequest_ToolsList(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	toolsList, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}
	if len(toolsList) != len(GetToolDefinitions()) {
		t.Errorf("Expected %d tools, got %d", len(GetToolDefinitions()), len(toolsList))
	}
}

func TestHandleRequest_NotificationsInitialized(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", Method: "notifications/initialized"})

	// Notifications don't get responses
	if resp != nil {
		t.Error("notifications/initialized should return nil response")
	}
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "nonexistent/method"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error == nil {
		t.Fatal("Expected error for unknown method")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("Error code: got %d, want -32601", resp.Error.Code)
	}
}

func TestServe(t *testing.T) {
	s := newTestServer(t)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"pupil_stats"}}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	dec := json.NewDecoder(&out)
	var resps []MCPResponse
	for dec.More() {
		var r MCPResponse
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		resps = append(resps, r)
	}

	// One response each for initialize, ping, the parse error and the tool call.
	if len(resps) != 4 {
		t.Fatalf("got %d responses, want 4", len(resps))
	}
	if resps[0].ID != float64(1) || resps[0].Error != nil {
		t.Errorf("initialize response: %+v", resps[0])
	}
	if resps[1].ID != float64(2) || resps[1].Error != nil {
		t.Errorf("ping response: %+v", resps[1])
	}
	if resps[2].Error == nil || resps[2].Error.Code != -32700 {
		t.Errorf("parse error response: %+v", resps[2])
	}
	if resps[3].ID != float64(3) || resps[3].Error != nil {
		t.Errorf("tools/call response: %+v", resps[3])
	}
}

func TestLocator(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"", "probe"} {
		if l, err := s.locator(name); err != nil || l != Locator(s.detector) {
			t.Errorf("locator(%q): got %v, %v; want the probe detector", name, l, err)
		}
	}
	if l, err := s.locator("hough"); err != nil || l != Locator(s.hough) {
		t.Errorf("locator(hough): got %v, %v", l, err)
	}
	if _, err := s.locator("starburst"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}
