package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// OnError controls whether a step failure aborts the pipeline.
type OnError string

const (
	OnErrorAbort    OnError = "abort"
	OnErrorContinue OnError = "continue"
)

// PipelineStep is one declarative step: a service name, its params, and the
// continue_on_error behavior. `yaml` and `json` tags let the same struct
// decode JSON, TOML or YAML pipeline files (spec.md §6).
type PipelineStep struct {
	Service string                 `yaml:"service" json:"service" toml:"service"`
	Params  map[string]interface{} `yaml:"params" json:"params" toml:"params"`
	OnError OnError                `yaml:"on_error" json:"on_error" toml:"on_error"`
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	Steps []PipelineStep `yaml:"steps" json:"steps" toml:"steps"`
}

// ParsePipelineYAML decodes a pipeline file in YAML, the pack's own
// gopkg.in/yaml.v3 dependency (the teacher's workflow_engine.go decodes
// WorkflowDefinition the same way).
func ParsePipelineYAML(data []byte) (Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse pipeline yaml: %w", err)
	}
	return p, nil
}

// ParsePipelineJSON decodes a pipeline file in JSON, using the same struct
// tags as ParsePipelineYAML.
func ParsePipelineJSON(data []byte) (Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse pipeline json: %w", err)
	}
	return p, nil
}

// ParsePipelineTOML decodes a pipeline file in TOML, via the pack's own
// BurntSushi/toml dependency (the same library core.Config's LoadConfig
// decodes with).
func ParsePipelineTOML(data []byte) (Pipeline, error) {
	var p Pipeline
	if _, err := toml.Decode(string(data), &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse pipeline toml: %w", err)
	}
	return p, nil
}

// StepRunner invokes one pipeline step by service name; the autonomy package
// supplies the concrete implementation (Registry.Call or a Chain.Run,
// depending on whether the step names a capability service or an MCP tool).
type StepRunner func(ctx context.Context, step PipelineStep) error

// PipelineStepResult records one step's outcome for the caller's event log.
type PipelineStepResult struct {
	Step    PipelineStep
	Err     error
	Aborted bool
}

// RunPipeline executes steps in order through runner; a step whose OnError
// is "abort" (the default) stops the pipeline on failure, while "continue"
// proceeds to the next step.
func RunPipeline(ctx context.Context, pipeline Pipeline, runner StepRunner) []PipelineStepResult {
	results := make([]PipelineStepResult, 0, len(pipeline.Steps))

	for _, step := range pipeline.Steps {
		err := runner(ctx, step)
		aborted := false
		if err != nil && step.OnError != OnErrorContinue {
			aborted = true
		}
		results = append(results, PipelineStepResult{Step: step, Err: err, Aborted: aborted})
		if aborted {
			break
		}
	}
	return results
}
