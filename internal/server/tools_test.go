package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	if len(tools) == 0 {
		t.Fatal("GetToolDefinitions returned empty slice")
	}

	expectedTools := []string{
		"image_load",
		"image_dimensions",
		"pupil_detect",
		"pupil_locate",
		"pupil_refine",
		"pupil_score",
		"pupil_train",
		"pupil_normalize",
		"pupil_configure",
		"pupil_stats",
		"pupil_save",
		"pupil_load",
		"pupil_overlay",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("Tool %s defined twice", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("Expected %d tools, got %d", len(expectedTools), len(tools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema == nil {
				t.Fatal("Tool InputSchema is nil")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema missing 'properties' map")
			}

			// Every required parameter must be described.
			if required, ok := tool.InputSchema["required"].([]string); ok {
				for _, r := range required {
					if _, ok := props[r]; !ok {
						t.Errorf("required parameter %s has no property", r)
					}
				}
			}
		})
	}
}

func TestToolDefinitions_Dispatch(t *testing.T) {
	s := newTestServer(t)

	// Every listed tool must be known to executeTool; an empty call may fail
	// on missing arguments but never as an unknown tool.
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			_, err := s.executeTool(tool.Name, json.RawMessage(`{}`))
			if err != nil && err.Error() == "unknown tool: "+tool.Name {
				t.Error("tool is listed but not dispatched")
			}
		})
	}
}

func TestToolDefinitions_RequiredPath(t *testing.T) {
	toolsRequiringPath := []string{
		"image_load",
		"image_dimensions",
		"pupil_detect",
		"pupil_locate",
		"pupil_refine",
		"pupil_score",
		"pupil_train",
		"pupil_overlay",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for _, name := range toolsRequiringPath {
		tool, ok := toolMap[name]
		if !ok {
			t.Errorf("tool %s not found", name)
			continue
		}

		t.Run(name, func(t *testing.T) {
			requiredList, ok := tool.InputSchema["required"].([]string)
			if !ok {
				t.Fatal("'required' should be a string slice")
			}

			hasPath := false
			for _, r := range requiredList {
				if r == "path" {
					hasPath = true
					break
				}
			}
			if !hasPath {
				t.Error("Tool should require 'path' parameter")
			}
		})
	}
}

func TestToolDefinitions_EllipseArguments(t *testing.T) {
	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for name, arg := range map[string]string{
		"pupil_refine":  "ellipse",
		"pupil_train":   "truth",
		"pupil_overlay": "ellipse",
	} {
		t.Run(name, func(t *testing.T) {
			props := toolMap[name].InputSchema["properties"].(map[string]interface{})
			schema, ok := props[arg].(map[string]interface{})
			if !ok {
				t.Fatalf("missing %s property", arg)
			}
			if schema["type"] != "object" {
				t.Errorf("%s type: got %v, want object", arg, schema["type"])
			}
			required, _ := schema["required"].([]string)
			want := map[string]bool{"x": true, "y": true, "major": true, "minor": true}
			for _, r := range required {
				delete(want, r)
			}
			for missing := range want {
				t.Errorf("%s should require %q", arg, missing)
			}
		})
	}
}

func TestToolDefinitions_AlgorithmEnum(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		props := tool.InputSchema["properties"].(map[string]interface{})
		prop, ok := props["algorithm"].(map[string]interface{})
		if !ok {
			continue
		}
		enum, ok := prop["enum"].([]string)
		if !ok {
			t.Errorf("%s: algorithm should have an enum", tool.Name)
			continue
		}

		s := newTestServer(t)
		for _, v := range enum {
			if _, err := s.locator(v); err != nil {
				t.Errorf("%s: enum value %q is not a known algorithm: %v", tool.Name, v, err)
			}
		}
	}
}
