package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/errs"
)

func testMasterKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")[:32]
}

func TestSeal_RejectsInadmissibleScript(t *testing.T) {
	_, err := Seal("bad", `os.Exit(1)`, KDFNone, "", testMasterKey())
	require.Error(t, err)
	assert.Equal(t, errs.KindSecurityViolation, errs.KindOf(err))
}

func TestSealOpen_RoundTripWithMasterKey(t *testing.T) {
	source := `result = strings.ToUpper(input["text"].(string))`
	rec, err := Seal("uppercase", source, KDFNone, "", testMasterKey())
	require.NoError(t, err)

	plaintext, err := Open(rec, "", testMasterKey())
	require.NoError(t, err)
	assert.Equal(t, source, plaintext)
}

func TestSealOpen_RoundTripWithPBKDF2Password(t *testing.T) {
	source := `result = 42`
	rec, err := Seal("const", source, KDFPBKDF2, "hunter2", nil)
	require.NoError(t, err)

	plaintext, err := Open(rec, "hunter2", nil)
	require.NoError(t, err)
	assert.Equal(t, source, plaintext)

	_, err = Open(rec, "wrong-password", nil)
	require.Error(t, err)
	assert.Equal(t, errs.KindIntegrityError, errs.KindOf(err))
}

func TestOpen_DetectsChecksumTampering(t *testing.T) {
	rec, err := Seal("x", `result = 1`, KDFNone, "", testMasterKey())
	require.NoError(t, err)
	rec.Checksum[0] ^= 0xFF

	_, err = Open(rec, "", testMasterKey())
	require.Error(t, err)
	assert.Equal(t, errs.KindIntegrityError, errs.KindOf(err))
}
