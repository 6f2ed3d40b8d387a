package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/pupil-tools-mcp/internal/hough"
	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
	"github.com/ironsheep/pupil-tools-mcp/internal/probe"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "pupil_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies configured defaults for optional parameters
//  3. Loads images and grayscale frames from the cache as needed
//  4. Calls the probe or hough detector
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Detection
	case "pupil_detect":
		return s.handlePupilDetect(args)
	case "pupil_locate":
		return s.handlePupilLocate(args)
	case "pupil_refine":
		return s.handlePupilRefine(args)
	case "pupil_score":
		return s.handlePupilScore(args)

	// Training
	case "pupil_train":
		return s.handlePupilTrain(args)
	case "pupil_normalize":
		return s.handlePupilNormalize(args)

	// Configuration and Persistence
	case "pupil_configure":
		return s.handlePupilConfigure(args)
	case "pupil_stats":
		return s.handlePupilStats()
	case "pupil_save":
		return s.handlePupilSave(args)
	case "pupil_load":
		return s.handlePupilLoad(args)

	// Visualization
	case "pupil_overlay":
		return s.handlePupilOverlay(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// frame returns the grayscale frame for path, blurred with sigma or with the
// configured default when sigma is nil.
func (s *Server) frame(path string, sigma *float64) (*imaging.Frame, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	blur := s.cfg.Preprocess.BlurSigma
	if sigma != nil {
		blur = *sigma
	}
	return s.cache.Frame(path, blur)
}

// ellipseArgs is the JSON form of a caller-supplied pupil.
type ellipseArgs struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Major float64 `json:"major"`
	Minor float64 `json:"minor"`
	Angle float64 `json:"angle"`
}

func (e ellipseArgs) ellipse() probe.Ellipse {
	return probe.Ellipse{X: e.X, Y: e.Y, Major: e.Major, Minor: e.Minor, Angle: e.Angle, Valid: true}
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Detection Handlers ===

type pupilDetectArgs struct {
	Path       string   `json:"path"`
	Algorithm  string   `json:"algorithm"`
	Iterations int      `json:"iterations"`
	BlurSigma  *float64 `json:"blur_sigma"`
}

// DetectResult is the outcome of pupil_detect.
type DetectResult struct {
	Algorithm string        `json:"algorithm"`
	Pupil     probe.Ellipse `json:"pupil"`

	// Candidates lists the Hough peaks behind the estimate, strongest first.
	Candidates []hough.Circle `json:"candidates,omitempty"`
}

func (s *Server) handlePupilDetect(args json.RawMessage) (interface{}, error) {
	var a pupilDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Iterations == 0 {
		a.Iterations = 1
	}
	f, err := s.frame(a.Path, a.BlurSigma)
	if err != nil {
		return nil, err
	}

	if _, err := s.locator(a.Algorithm); err != nil {
		return nil, err
	}

	if a.Algorithm == "hough" {
		peaks, err := s.hough.Circles(f)
		if err != nil {
			return nil, err
		}
		res := &DetectResult{Algorithm: "hough", Candidates: peaks}
		if len(peaks) > 0 {
			best := peaks[0]
			res.Pupil = probe.Circle(float64(best.X), float64(best.Y), float64(best.Radius))
			res.Pupil.Confidence = best.Confidence
		}
		return res, nil
	}

	est, err := s.detector.DetectIterations(f, a.Iterations)
	if err != nil {
		return nil, err
	}
	return &DetectResult{Algorithm: "probe", Pupil: est}, nil
}

type pupilLocateArgs struct {
	Path      string   `json:"path"`
	MinRadius *float64 `json:"min_radius"`
	MaxRadius *float64 `json:"max_radius"`
	BlurSigma *float64 `json:"blur_sigma"`
}

func (s *Server) handlePupilLocate(args json.RawMessage) (interface{}, error) {
	var a pupilLocateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	f, err := s.frame(a.Path, a.BlurSigma)
	if err != nil {
		return nil, err
	}
	params, _ := s.detector.Params()
	lo, hi := params.MinRadius, params.MaxRadius
	if a.MinRadius != nil {
		lo = *a.MinRadius
	}
	if a.MaxRadius != nil {
		hi = *a.MaxRadius
	}
	est, err := s.detector.Locate(f, lo, hi)
	if err != nil {
		return nil, err
	}
	return &DetectResult{Algorithm: "probe", Pupil: est}, nil
}

type pupilRefineArgs struct {
	Path      string       `json:"path"`
	Ellipse   *ellipseArgs `json:"ellipse"`
	BlurSigma *float64     `json:"blur_sigma"`
}

func (s *Server) handlePupilRefine(args json.RawMessage) (interface{}, error) {
	var a pupilRefineArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Ellipse == nil {
		return nil, errors.New("ellipse is required")
	}
	f, err := s.frame(a.Path, a.BlurSigma)
	if err != nil {
		return nil, err
	}
	est, err := s.detector.Refine(f, a.Ellipse.ellipse())
	if err != nil {
		return nil, err
	}
	return &DetectResult{Algorithm: "probe", Pupil: est}, nil
}

type pupilScoreArgs struct {
	Path      string   `json:"path"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Radius    float64  `json:"radius"`
	BlurSigma *float64 `json:"blur_sigma"`
}

// ScoreResult is the outcome of pupil_score.
type ScoreResult struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Radius float64 `json:"radius"`
	Score  float64 `json:"score"`
}

func (s *Server) handlePupilScore(args json.RawMessage) (interface{}, error) {
	var a pupilScoreArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	f, err := s.frame(a.Path, a.BlurSigma)
	if err != nil {
		return nil, err
	}
	score, err := s.detector.Score(f, a.X, a.Y, a.Radius)
	if err != nil {
		return nil, err
	}
	return &ScoreResult{X: a.X, Y: a.Y, Radius: a.Radius, Score: score}, nil
}

// === Training Handlers ===

type pupilTrainArgs struct {
	Path       string       `json:"path"`
	Truth      *ellipseArgs `json:"truth"`
	Rate       float64      `json:"rate"`
	Iterations int          `json:"iterations"`
	BlurSigma  *float64     `json:"blur_sigma"`
}

// TrainResult is the outcome of pupil_train.
type TrainResult struct {
	// Estimate is the detection from the last round, made before that
	// round's training step.
	Estimate   probe.Ellipse `json:"estimate"`
	Iterations int           `json:"iterations"`
	Rate       float64       `json:"rate"`
	SelfTrain  bool          `json:"self_train"`
	Coarse     probe.Stats   `json:"coarse"`
	Fine       probe.Stats   `json:"fine"`
}

func (s *Server) handlePupilTrain(args json.RawMessage) (interface{}, error) {
	var a pupilTrainArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Iterations == 0 {
		a.Iterations = 1
	}
	if a.Rate == 0 {
		a.Rate = s.cfg.Training.Rate
	}
	f, err := s.frame(a.Path, a.BlurSigma)
	if err != nil {
		return nil, err
	}

	var truth *probe.Ellipse
	if a.Truth != nil {
		e := a.Truth.ellipse()
		truth = &e
	}
	est, err := s.detector.TrainIterations(f, truth, a.Rate, a.Iterations)
	if err != nil {
		return nil, err
	}
	coarse, fine := s.detector.Stats()
	return &TrainResult{
		Estimate:   est,
		Iterations: a.Iterations,
		Rate:       a.Rate,
		SelfTrain:  truth == nil,
		Coarse:     coarse,
		Fine:       fine,
	}, nil
}

type pupilNormalizeArgs struct {
	Percentile float64 `json:"percentile"`
}

func (s *Server) handlePupilNormalize(args json.RawMessage) (interface{}, error) {
	var a pupilNormalizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Percentile == 0 {
		a.Percentile = s.cfg.Training.NormalizePercentile
	}
	if err := s.detector.NormalizeWeights(a.Percentile); err != nil {
		return nil, err
	}
	return s.stats(), nil
}

// === Configuration and Persistence Handlers ===

type pupilConfigureArgs struct {
	Coarse json.RawMessage `json:"coarse"`
	Fine   json.RawMessage `json:"fine"`
	AOI    json.RawMessage `json:"aoi"`
}

// StatsResult reports the active settings and learned table state.
type StatsResult struct {
	Coarse      probe.Params         `json:"coarse"`
	Fine        probe.Refinement     `json:"fine"`
	AOI         probe.AreaOfInterest `json:"aoi"`
	CoarseTable probe.Stats          `json:"coarse_table"`
	FineTable   probe.Stats          `json:"fine_table"`
	TablesPath  string               `json:"tables_path,omitempty"`
}

func (s *Server) stats() *StatsResult {
	params, ref := s.detector.Params()
	coarse, fine := s.detector.Stats()
	return &StatsResult{
		Coarse:      params,
		Fine:        ref,
		AOI:         s.detector.AreaOfInterest(),
		CoarseTable: coarse,
		FineTable:   fine,
		TablesPath:  s.cfg.Tables.Path,
	}
}

// handlePupilConfigure applies partial updates. Omitted sections, and omitted
// fields inside a section, keep their current values. Geometry is only
// rebuilt when coarse or fine is given. Every section is validated before
// anything changes.
func (s *Server) handlePupilConfigure(args json.RawMessage) (interface{}, error) {
	var a pupilConfigureArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	params, ref := s.detector.Params()
	aoi := s.detector.AreaOfInterest()
	if len(a.Coarse) > 0 {
		if err := json.Unmarshal(a.Coarse, &params); err != nil {
			return nil, fmt.Errorf("coarse: %w", err)
		}
	}
	if len(a.Fine) > 0 {
		if err := json.Unmarshal(a.Fine, &ref); err != nil {
			return nil, fmt.Errorf("fine: %w", err)
		}
	}
	if len(a.AOI) > 0 {
		if err := json.Unmarshal(a.AOI, &aoi); err != nil {
			return nil, fmt.Errorf("aoi: %w", err)
		}
	}

	// A request either applies in full or leaves everything unchanged.
	switch {
	case len(a.Coarse) > 0 || len(a.Fine) > 0:
		if err := s.detector.Reconfigure(params, ref, aoi); err != nil {
			return nil, err
		}
		s.cfg.Coarse, s.cfg.Fine = params, ref
	case len(a.AOI) > 0:
		if err := s.detector.SetAreaOfInterest(aoi.StartX, aoi.StopX, aoi.StartY, aoi.StopY); err != nil {
			return nil, err
		}
	}
	s.cfg.AOI = aoi
	s.hough.AOI = aoi
	return s.stats(), nil
}

func (s *Server) handlePupilStats() (interface{}, error) {
	return s.stats(), nil
}

type pupilTablesArgs struct {
	Path string `json:"path"`
}

// TablesResult is the outcome of pupil_save and pupil_load.
type TablesResult struct {
	Path   string      `json:"path"`
	Coarse probe.Stats `json:"coarse"`
	Fine   probe.Stats `json:"fine"`
}

func (s *Server) tablesPath(args json.RawMessage) (string, error) {
	var a pupilTablesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		a.Path = s.cfg.Tables.Path
	}
	if a.Path == "" {
		return "", errors.New("no path given and no tables.path configured")
	}
	return a.Path, nil
}

func (s *Server) handlePupilSave(args json.RawMessage) (interface{}, error) {
	path, err := s.tablesPath(args)
	if err != nil {
		return nil, err
	}
	if err := s.detector.Save(path); err != nil {
		return nil, err
	}
	coarse, fine := s.detector.Stats()
	return &TablesResult{Path: path, Coarse: coarse, Fine: fine}, nil
}

func (s *Server) handlePupilLoad(args json.RawMessage) (interface{}, error) {
	path, err := s.tablesPath(args)
	if err != nil {
		return nil, err
	}
	if err := s.detector.Load(path); err != nil {
		return nil, err
	}
	coarse, fine := s.detector.Stats()
	return &TablesResult{Path: path, Coarse: coarse, Fine: fine}, nil
}

// === Visualization Handlers ===

type pupilOverlayArgs struct {
	Path      string       `json:"path"`
	Ellipse   *ellipseArgs `json:"ellipse"`
	Algorithm string       `json:"algorithm"`
	Color     string       `json:"color"`
	Thickness int          `json:"thickness"`
	ShowAOI   bool         `json:"show_aoi"`
	BlurSigma *float64     `json:"blur_sigma"`
}

// OverlayResult is the annotated image plus the pupil that was drawn.
type OverlayResult struct {
	*imaging.OverlayResult
	Pupil probe.Ellipse `json:"pupil"`
}

func (s *Server) handlePupilOverlay(args json.RawMessage) (interface{}, error) {
	var a pupilOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	var pupil probe.Ellipse
	if a.Ellipse != nil {
		pupil = a.Ellipse.ellipse()
		if err := pupil.Validate(); err != nil {
			return nil, fmt.Errorf("ellipse: %w", err)
		}
	} else {
		loc, err := s.locator(a.Algorithm)
		if err != nil {
			return nil, err
		}
		f, err := s.frame(a.Path, a.BlurSigma)
		if err != nil {
			return nil, err
		}
		if pupil, err = loc.Detect(f); err != nil {
			return nil, err
		}
	}

	opts := imaging.OverlayOptions{Color: a.Color, Thickness: a.Thickness}
	if a.ShowAOI {
		b := img.Bounds()
		region, err := s.detector.AreaOfInterest().Rect(b.Dx(), b.Dy())
		if err != nil {
			return nil, err
		}
		opts.Region = region
	}

	var outlines []imaging.Outline
	if pupil.Valid {
		outlines = append(outlines, imaging.Outline{
			X: pupil.X, Y: pupil.Y, Major: pupil.Major, Minor: pupil.Minor, Angle: pupil.Angle,
		})
	}
	res, err := imaging.DrawOutlines(img, outlines, opts)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{OverlayResult: res, Pupil: pupil}, nil
}
