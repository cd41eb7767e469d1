package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argvs(specs []StageSpec) [][]string {
	out := make([][]string, len(specs))
	for i, s := range specs {
		out[i] = s.Argv
	}
	return out
}

func TestNormalizeLine(t *testing.T) {
	specs, err := Normalize(Line(`grep "foo bar" | wc -l`), nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"grep", "foo bar"}, {"wc", "-l"}}, argvs(specs))
	assert.Equal(t, "grep", specs[0].Name())
}

func TestNormalizeLinesDoesNotSplitPipes(t *testing.T) {
	specs, err := Normalize(Lines{"echo 'a|b'", "cat"}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"echo", "a|b"}, {"cat"}}, argvs(specs))
}

func TestNormalizeNoExpansion(t *testing.T) {
	specs, err := Normalize(Line(`echo $HOME *.go`), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "$HOME", "*.go"}, specs[0].Argv)
}

func TestNormalizeArgvsCopied(t *testing.T) {
	in := Argvs{{"echo", "hi"}}
	specs, err := Normalize(in, nil)
	require.NoError(t, err)
	in[0][1] = "changed"
	assert.Equal(t, []string{"echo", "hi"}, specs[0].Argv)
}

func TestNormalizeErrors(t *testing.T) {
	cases := map[string]Commands{
		"nil":            nil,
		"empty line":     Line("   "),
		"empty segment":  Line("echo hi | | wc"),
		"trailing pipe":  Line("echo hi |"),
		"no lines":       Lines{},
		"blank line":     Lines{"echo", " "},
		"no argvs":       Argvs{},
		"empty argv":     Argvs{{"echo"}, {}},
		"unbalanced":     Line(`echo "oops`),
		"only separator": Line("|"),
	}
	for name, cmds := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(cmds, nil)
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

func TestNormalizeCustomTokenizer(t *testing.T) {
	tok := TokenizerFunc(func(s string) ([]string, error) {
		return strings.Split(s, ","), nil
	})
	specs, err := Normalize(Line("a,b | c"), tok)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, argvs(specs))
}

func TestNormalizeShell(t *testing.T) {
	specs, err := NormalizeShell(Line("echo $HOME | wc -c"), "/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"/bin/sh", "-c", "echo $HOME"},
		{"/bin/sh", "-c", "wc -c"},
	}, argvs(specs))

	specs, err = NormalizeShell(Argvs{{"echo", "a b"}}, "/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", "-c", "echo 'a b'"}, specs[0].Argv)

	_, err = NormalizeShell(Line("echo"), "")
	assert.ErrorIs(t, err, ErrInvalidOption)
}
