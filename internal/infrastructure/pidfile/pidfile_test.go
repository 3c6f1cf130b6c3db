package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "dispatcher.pid")
}

func TestPIDFile_AcquireWritesOwnPID(t *testing.T) {
	path := testPath(t)
	pf := New(path)

	require.NoError(t, pf.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	require.NoError(t, pf.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_RefusesLiveProcess(t *testing.T) {
	path := testPath(t)
	// The test process itself is the live holder
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644))

	err := New(path).Acquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another dispatcher holds")
}

func TestPIDFile_ReplacesStalePID(t *testing.T) {
	path := testPath(t)
	// Way past pid_max on any Linux box, so signal 0 gets ESRCH
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0o644))

	pf := New(path)
	require.NoError(t, pf.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestPIDFile_ReplacesGarbledFile(t *testing.T) {
	path := testPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	require.NoError(t, New(path).Acquire())
}

func TestPIDFile_ReleaseOnMissingFile(t *testing.T) {
	assert.NoError(t, New(testPath(t)).Release())
}
