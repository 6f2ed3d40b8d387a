package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the eye image file",
}

var blurProperty = map[string]interface{}{
	"type":        "number",
	"description": "Gaussian blur sigma applied before searching. Default from the server configuration (1.0); 0 disables blurring",
}

var algorithmProperty = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"probe", "hough"},
	"description": "Detector to use: 'probe' (learned radial probes, default) or 'hough' (edge-vote circle transform)",
}

// ellipseSchema describes a pupil ellipse argument.
func ellipseSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"x": map[string]interface{}{
				"type":        "number",
				"description": "Center X in pixels",
			},
			"y": map[string]interface{}{
				"type":        "number",
				"description": "Center Y in pixels",
			},
			"major": map[string]interface{}{
				"type":        "number",
				"description": "Major semi-axis in pixels",
			},
			"minor": map[string]interface{}{
				"type":        "number",
				"description": "Minor semi-axis in pixels",
			},
			"angle": map[string]interface{}{
				"type":        "number",
				"description": "Direction of the major axis in radians. Default 0",
			},
		},
		"required": []string{"x", "y", "major", "minor"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an eye image and return its dimensions, format and intensity statistics. The image stays cached for subsequent pupil operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},

		// Detection
		{
			Name:        "pupil_detect",
			Description: "Locate the pupil in an eye image and return it as a rotated ellipse (center, semi-axes, angle, confidence). A result with valid=false means no pupil was found.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"algorithm": algorithmProperty,
					"iterations": map[string]interface{}{
						"type":        "integer",
						"description": "Number of detection passes; the last estimate is returned. Probe detector only. Default 1",
						"default":     1,
					},
					"blur_sigma": blurProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "pupil_locate",
			Description: "Run only the coarse probe search and return the best circle. Optionally restrict the radius range searched.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"min_radius": map[string]interface{}{
						"type":        "number",
						"description": "Smallest radius to consider. Default: the coarse table's minimum",
					},
					"max_radius": map[string]interface{}{
						"type":        "number",
						"description": "Largest radius to consider. Default: the coarse table's maximum",
					},
					"blur_sigma": blurProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "pupil_refine",
			Description: "Run only the fine fitting stage around an approximate pupil and return the fitted ellipse.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":       pathProperty,
					"ellipse":    ellipseSchema("Approximate pupil to refine"),
					"blur_sigma": blurProperty,
				},
				"required": []string{"path", "ellipse"},
			},
		},
		{
			Name:        "pupil_score",
			Description: "Score one coarse hypothesis: the weighted mean contrast across the boundary of a circle at (x, y). Higher means a darker disc on a brighter surround.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "Center X coordinate",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Center Y coordinate",
					},
					"radius": map[string]interface{}{
						"type":        "number",
						"description": "Hypothesized radius; the nearest radius bin is used",
					},
					"blur_sigma": blurProperty,
				},
				"required": []string{"path", "x", "y", "radius"},
			},
		},

		// Training
		{
			Name:        "pupil_train",
			Description: "Train the probe tables on an eye image. With a truth ellipse the tables learn from the labelled pupil; without one they self-calibrate on their own detections. Returns the last estimate and the updated table statistics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty,
					"truth": ellipseSchema("Ground-truth pupil. Omit to self-calibrate"),
					"rate": map[string]interface{}{
						"type":        "number",
						"description": "Learning rate in (0, 1]. Default from the server configuration",
					},
					"iterations": map[string]interface{}{
						"type":        "integer",
						"description": "Detect/train rounds. Default 1",
						"default":     1,
					},
					"blur_sigma": blurProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "pupil_normalize",
			Description: "Rescale learned weights so the given percentile of each table equals 1.0. Bounds weight growth after long training runs.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"percentile": map[string]interface{}{
						"type":        "number",
						"description": "Quantile in (0, 1]. Default from the server configuration (0.95)",
					},
				},
			},
		},

		// Configuration and Persistence
		{
			Name:        "pupil_configure",
			Description: "Change the probe geometry, refinement settings or area of interest. Changing geometry rebuilds the tables and discards learned weights. Returns the active settings.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"coarse": map[string]interface{}{
						"type":        "object",
						"description": "Coarse table geometry: min_radius, max_radius, radius_step, orientation_step (degrees), distance_step, depth. Omitted fields keep their values",
					},
					"fine": map[string]interface{}{
						"type":        "object",
						"description": "Refinement settings: radius_step, orientation_step, distance_step, depth, window, band. Omitted fields keep their values",
					},
					"aoi": map[string]interface{}{
						"type":        "object",
						"description": "Area-of-interest margins in pixels: start_x, stop_x, start_y, stop_y. Omitted fields keep their values",
					},
				},
			},
		},
		{
			Name:        "pupil_stats",
			Description: "Report the active settings and the learned state of the coarse and fine tables.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "pupil_save",
			Description: "Save the learned probe tables to a file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Destination file. Default: tables.path from the server configuration",
					},
				},
			},
		},
		{
			Name:        "pupil_load",
			Description: "Load probe tables saved by pupil_save. The file must match the active geometry; on mismatch the current tables are kept.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Table file. Default: tables.path from the server configuration",
					},
				},
			},
		},

		// Visualization
		{
			Name:        "pupil_overlay",
			Description: "Draw a pupil outline on the image and return it as base64-encoded PNG. Draws the given ellipse, or detects one when none is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"ellipse":   ellipseSchema("Pupil to draw. Omit to detect"),
					"algorithm": algorithmProperty,
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Outline color as hex. Default '#00FF00'",
						"default":     "#00FF00",
					},
					"thickness": map[string]interface{}{
						"type":        "integer",
						"description": "Stroke width in pixels. Default 1",
						"default":     1,
					},
					"show_aoi": map[string]interface{}{
						"type":        "boolean",
						"description": "Also draw the search area of interest. Default false",
						"default":     false,
					},
					"blur_sigma": blurProperty,
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
