package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinicadmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", path}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestConfigShow(t *testing.T) {
	out, err := run(t, "config", "show", "--backend", "http://clinic.internal:8080/api")
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "http://clinic.internal:8080/api", doc["backend"]["base_url"])
	assert.Equal(t, "error", doc["log"]["level"])
}

func TestDemo(t *testing.T) {
	out, err := run(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "source=network")
	assert.Contains(t, out, "source=cache stale=false")
	assert.Contains(t, out, "BACKEND → /admin/medicines requests: 1")
	assert.Contains(t, out, "stale=true (served at once)")
	assert.Contains(t, out, "unavailable=true")
	assert.Contains(t, out, "BACKEND → /admin/orders requests: 1")
	assert.Contains(t, out, "stats still cached: false")
	assert.Contains(t, out, "doctors=4 source=network")
	assert.Contains(t, out, "revalidated doctors")
	assert.Contains(t, out, "cooldown_rejects_total")
}

func TestLoadtest(t *testing.T) {
	out, err := run(t, "loadtest", "--workers", "8", "--requests", "50", "--pages", "2", "--latency", "1ms")
	require.NoError(t, err)

	assert.Contains(t, out, "Total Reads      : 400")
	assert.Contains(t, out, "Failed           : 0")
}

func TestFetchUnknownFamily(t *testing.T) {
	_, err := run(t, "fetch", "prescriptions", "--backend", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource family")
}
