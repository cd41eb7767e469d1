package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejects(t *testing.T) {
	cases := []struct {
		name string
		ep   Endpoint
		role Role
	}{
		{"buffered stdin", Buffered{}, RoleStdin},
		{"literal stdout", Text("x"), RoleStdout},
		{"literal stderr", Bytes([]byte("x")), RoleStderr},
		{"append stdin", File{Path: "/etc/hostname", Append: true}, RoleStdin},
		{"empty path", File{}, RoleStdout},
		{"nil stream", Stream{}, RoleStdout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolve(tc.ep, tc.role)
			require.ErrorIs(t, err, ErrUnsupportedEndpoint)
			var epErr *EndpointError
			require.True(t, errors.As(err, &epErr))
			assert.Equal(t, tc.role, epErr.Role)
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	in, err := resolve(nil, RoleStdin)
	require.NoError(t, err)
	assert.Nil(t, in.proc)

	out, err := resolve(nil, RoleStdout)
	require.NoError(t, err)
	defer out.release()
	assert.NotNil(t, out.capture)
	assert.Same(t, out.proc, out.capture)
	assert.False(t, out.closeProc)
}

func TestResolveDirect(t *testing.T) {
	in, err := resolve(Direct{}, RoleStdin)
	require.NoError(t, err)
	defer in.release()
	_, err = in.caller.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = in.proc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	assert.True(t, in.closeProc)
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	s, err := resolve(File{Path: path, Append: true}, RoleStdout)
	require.NoError(t, err)
	_, err = s.proc.WriteString("new\n")
	require.NoError(t, err)
	s.release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))

	s, err = resolve(File{Path: path}, RoleStdout)
	require.NoError(t, err)
	s.release()
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = resolve(File{Path: filepath.Join(t.TempDir(), "missing")}, RoleStdin)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStreamNotClosed(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stream")
	require.NoError(t, err)
	defer f.Close()

	s, err := resolve(Stream{F: f}, RoleStdout)
	require.NoError(t, err)
	s.handOff()
	s.release()

	_, err = f.WriteString("still open")
	assert.NoError(t, err)
}

func TestDescribeEndpoint(t *testing.T) {
	assert.Equal(t, "literal(5 bytes)", describeEndpoint(Text("hello")))
	assert.Equal(t, "file(/tmp/x)", describeEndpoint(File{Path: "/tmp/x"}))
	assert.Equal(t, "default", describeEndpoint(nil))
}
