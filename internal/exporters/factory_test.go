package exporters

import (
	"testing"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_ForStep_FileExporterStep(t *testing.T) {
	step := domain.StepConfig{ID: "s1", Kind: domain.StepFileExporter, Params: map[string]any{"output_path": t.TempDir()}}

	exp, err := (Factory{}).ForStep(step)
	require.NoError(t, err)
	assert.IsType(t, &FileExporter{}, exp)
	assert.True(t, exp.Status().Connected)
}

func TestFactory_ForStep_DBExporterDispatchesOnDriver(t *testing.T) {
	path := t.TempDir() + "/out.sqlite"
	step := domain.StepConfig{ID: "s2", Kind: domain.StepDBExporter, Params: map[string]any{"driver": "sqlite", "path": path}}

	exp, err := (Factory{}).ForStep(step)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteExporter{}, exp)
}

func TestFactory_ForStep_UnknownDriverIsAnError(t *testing.T) {
	step := domain.StepConfig{ID: "s3", Kind: domain.StepDBExporter, Params: map[string]any{"driver": "oracle"}}

	_, err := (Factory{}).ForStep(step)
	assert.Error(t, err)
}

func TestFactory_ForStep_NonExporterKindIsAnError(t *testing.T) {
	step := domain.StepConfig{ID: "s4", Kind: domain.StepUserScript}

	_, err := (Factory{}).ForStep(step)
	assert.Error(t, err)
}
