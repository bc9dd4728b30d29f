package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPipeline() *PipelineConfig {
	return &PipelineConfig{
		Name: "p1",
		Steps: []StepConfig{
			{ID: "load", Kind: StepDocumentLoader, Params: map[string]any{"source_path": "/tmp/a.pdf"}},
			{ID: "split", Kind: StepLineSplitter, InputStepID: strPtr("load"), Params: map[string]any{}},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestPipelineConfig_Validate_Accepts(t *testing.T) {
	require.NoError(t, validPipeline().Validate())
}

func TestPipelineConfig_Validate_RejectsEmptyName(t *testing.T) {
	p := validPipeline()
	p.Name = ""
	assert.Error(t, p.Validate())
}

func TestPipelineConfig_Validate_RejectsNoSteps(t *testing.T) {
	p := validPipeline()
	p.Steps = nil
	assert.Error(t, p.Validate())
}

func TestPipelineConfig_Validate_RejectsDanglingInputStepID(t *testing.T) {
	p := validPipeline()
	p.Steps[1].InputStepID = strPtr("missing")
	assert.Error(t, p.Validate())
}

func TestPipelineConfig_Validate_RejectsMutuallyExclusiveInputAndDepends(t *testing.T) {
	p := validPipeline()
	p.Steps[1].DependsOn = []string{"load"}
	assert.Error(t, p.Validate())
}

func TestPipelineConfig_Validate_RejectsCycle(t *testing.T) {
	p := &PipelineConfig{
		Name: "cyclic",
		Steps: []StepConfig{
			{ID: "a", Kind: StepLineSplitter, DependsOn: []string{"b"}},
			{ID: "b", Kind: StepLineSplitter, DependsOn: []string{"a"}},
		},
	}
	assert.Error(t, p.Validate())
}

func TestPipelineConfig_Validate_RequiresKindSpecificParams(t *testing.T) {
	cases := []struct {
		name string
		step StepConfig
	}{
		{"loader missing path", StepConfig{ID: "s", Kind: StepDocumentLoader, Params: map[string]any{}}},
		{"user script missing id", StepConfig{ID: "s", Kind: StepUserScript, Params: map[string]any{}}},
		{"db exporter missing table", StepConfig{ID: "s", Kind: StepDBExporter, Params: map[string]any{}}},
		{"file exporter missing output", StepConfig{ID: "s", Kind: StepFileExporter, Params: map[string]any{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &PipelineConfig{Name: "p", Steps: []StepConfig{tc.step}}
			assert.Error(t, p.Validate())
		})
	}
}
