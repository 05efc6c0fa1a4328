package reframe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan records everything decided before the frame loop: stream
// parameters, output geometry, and the per-scene strategy list. It
// serializes to YAML so a run's decisions can be inspected or archived.
type Plan struct {
	Source      string          `json:"source" yaml:"source"`
	Width       int             `json:"width" yaml:"width"`
	Height      int             `json:"height" yaml:"height"`
	FrameRate   float64         `json:"frame_rate" yaml:"frame_rate"`
	TotalFrames int             `json:"total_frames" yaml:"total_frames"`
	HasAudio    bool            `json:"has_audio" yaml:"has_audio"`
	Output      Config          `json:"output" yaml:"output"`
	Scenes      []SceneAnalysis `json:"scenes" yaml:"scenes"`
}

// WritePlan saves the plan as YAML.
func WritePlan(path string, plan *Plan) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 - plan files are not secrets
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// ReadPlan loads a plan written by WritePlan.
func ReadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path) // #nosec G304 - plan paths come from the operator, not remote input
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}
