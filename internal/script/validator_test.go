package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AdmitsUppercaseTransform(t *testing.T) {
	violations, err := Validate(`result = strings.ToUpper(input["text"].(string))`)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidate_RejectsOSExitCall(t *testing.T) {
	violations, err := Validate(`os.Exit(1)`)
	require.NoError(t, err)
	require.NotEmpty(t, violations)
	found := false
	for _, v := range violations {
		if v.Rule == "denied_call" && v.Detail == "os.Exit" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_RejectsGoroutines(t *testing.T) {
	violations, err := Validate(`
go func() { result = 1 }()
`)
	require.NoError(t, err)
	require.NotEmpty(t, violations)
}

func TestValidate_RejectsExecCommandByTextualToken(t *testing.T) {
	violations, err := Validate(`result = exec.Command("ls").String()`)
	require.NoError(t, err)
	found := false
	for _, v := range violations {
		if v.Rule == "denied_token" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_RejectsSyscallSelector(t *testing.T) {
	violations, err := Validate(`result = syscall.Kill(1, 9)`)
	require.NoError(t, err)
	assert.NotEmpty(t, violations)
}

func TestValidate_DeniedImportPathHelper(t *testing.T) {
	assert.True(t, deniedImportPath("os"))
	assert.True(t, deniedImportPath("os/exec"))
	assert.True(t, deniedImportPath("debug/pprof"))
	assert.False(t, deniedImportPath("strings"))
}
