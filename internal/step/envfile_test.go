package step

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	t.Parallel()

	src := "# comment\n\nA=1\nB = spaced value\nEMPTY=\nURL=http://x?a=b\nBODY<<END\nline 1\n\nline 3\nEND\n"

	vars, err := ParseEnv(strings.NewReader(src))

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"A":     "1",
		"B":     " spaced value",
		"EMPTY": "",
		"URL":   "http://x?a=b",
		"BODY":  "line 1\n\nline 3",
	}, vars)
}

func TestParseEnv_Errors(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"NOVALUE\n", "=x\n", "X<<EOF\nunterminated\n", "<<EOF\nEOF\n"} {
		_, err := ParseEnv(strings.NewReader(src))
		assert.Error(t, err, src)
	}
}

func TestReadEnvFile_Missing(t *testing.T) {
	t.Parallel()

	vars, err := ReadEnvFile(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLineCounter(t *testing.T) {
	t.Parallel()

	c := &lineCounter{pattern: DefaultWarningPattern}
	_, _ = c.Write([]byte("warning: a\nok\nwarn"))
	_, _ = c.Write([]byte("ing[E01]: b\nWARNING: c"))
	assert.Equal(t, 3, c.Count())

	custom := &lineCounter{pattern: regexp.MustCompile(`^W\d+`)}
	_, _ = custom.Write([]byte("W100 x\nwarning: y\n"))
	assert.Equal(t, 1, custom.Count())
}
