package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePipelineYAML = `
steps:
  - service: mckinsey-ppt
    params:
      topic: growth
    on_error: abort
  - service: research-brief
    params:
      topic: competitors
    on_error: continue
`

func TestParsePipelineYAML(t *testing.T) {
	p, err := ParsePipelineYAML([]byte(samplePipelineYAML))
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "mckinsey-ppt", p.Steps[0].Service)
	assert.Equal(t, OnErrorContinue, p.Steps[1].OnError)
}

func TestParsePipelineJSONMatchesYAML(t *testing.T) {
	jsonDoc := `{"steps":[{"service":"mckinsey-ppt","params":{"topic":"growth"},"on_error":"abort"}]}`
	p, err := ParsePipelineJSON([]byte(jsonDoc))
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "mckinsey-ppt", p.Steps[0].Service)
	assert.Equal(t, "growth", p.Steps[0].Params["topic"])
}

func TestParsePipelineTOML(t *testing.T) {
	tomlDoc := "[[steps]]\nservice = \"research-brief\"\non_error = \"continue\"\n[steps.params]\ntopic = \"competitors\"\n"
	p, err := ParsePipelineTOML([]byte(tomlDoc))
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "research-brief", p.Steps[0].Service)
	assert.Equal(t, OnErrorContinue, p.Steps[0].OnError)
}

func TestRunPipelineAbortsOnDefaultOnError(t *testing.T) {
	p := Pipeline{Steps: []PipelineStep{
		{Service: "a", OnError: OnErrorAbort},
		{Service: "b", OnError: OnErrorAbort},
	}}
	results := RunPipeline(context.Background(), p, func(_ context.Context, step PipelineStep) error {
		if step.Service == "a" {
			return errors.New("boom")
		}
		return nil
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
}

func TestRunPipelineContinuesPastFailureWhenConfigured(t *testing.T) {
	p := Pipeline{Steps: []PipelineStep{
		{Service: "a", OnError: OnErrorContinue},
		{Service: "b", OnError: OnErrorAbort},
	}}
	var ran []string
	results := RunPipeline(context.Background(), p, func(_ context.Context, step PipelineStep) error {
		ran = append(ran, step.Service)
		if step.Service == "a" {
			return errors.New("boom")
		}
		return nil
	})
	require.Len(t, results, 2)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.False(t, results[0].Aborted)
	assert.False(t, results[1].Aborted)
}
