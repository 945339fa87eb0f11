package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalkUpFindsNearestDotEnv(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "A=1\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := walkUp(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env"), got)
}

func TestLoadKeepsEarlierSourcesAndRealEnv(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "project.env")
	second := filepath.Join(dir, "user", userEnvFile)
	writeFile(t, first, "FLASHAGENT_TEST_PRIMARY=project\n")
	writeFile(t, second, "FLASHAGENT_TEST_PRIMARY=user\nFLASHAGENT_TEST_SECONDARY=user\nFLASHAGENT_TEST_REAL=file\n")

	t.Setenv("FLASHAGENT_TEST_PRIMARY", "")
	os.Unsetenv("FLASHAGENT_TEST_PRIMARY")
	t.Setenv("FLASHAGENT_TEST_SECONDARY", "")
	os.Unsetenv("FLASHAGENT_TEST_SECONDARY")
	t.Setenv("FLASHAGENT_TEST_REAL", "process")

	done, err := load([]string{first, filepath.Join(dir, "missing.env"), second, first})
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, done)
	assert.Equal(t, "project", os.Getenv("FLASHAGENT_TEST_PRIMARY"))
	assert.Equal(t, "user", os.Getenv("FLASHAGENT_TEST_SECONDARY"))
	assert.Equal(t, "process", os.Getenv("FLASHAGENT_TEST_REAL"))
}

func TestLoadReportsMissingExplicitFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")
	t.Setenv(EnvFile, missing)
	_, err := load([]string{missing})
	assert.ErrorContains(t, err, EnvFile)
}

func TestSourcesOrder(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "explicit.env")
	t.Setenv(EnvFile, explicit)
	home := t.TempDir()
	old := configHome
	configHome = func() string { return home }
	t.Cleanup(func() { configHome = old })

	got, err := sources()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, explicit, got[0])
	assert.Equal(t, filepath.Join(home, userEnvFile), got[len(got)-1])
}

func TestEnsureIsHermeticUnderTest(t *testing.T) {
	t.Setenv("GOTEST_LOAD_DOTENV", "")
	assert.NoError(t, Ensure())
	assert.Empty(t, LoadedPaths())
}
