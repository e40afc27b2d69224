package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

type testConfig struct {
	Name    string
	Port    uint16
	Timeout time.Duration
	Size    resource.Quantity
	Tags    []string
	Nested  struct {
		Value int
	}
}

const baseConfig = `
name: base
port: 8080
timeout: 5s
size: 32Mi
tags: a,b
nested:
  value: 1
`

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig_Base(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseConfig)

	var config testConfig
	_, err := LoadConfig(&config, dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "base", config.Name)
	assert.Equal(t, uint16(8080), config.Port)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, int64(32*1024*1024), config.Size.Value())
	assert.Equal(t, []string{"a", "b"}, config.Tags)
	assert.Equal(t, 1, config.Nested.Value)
}

func TestLoadConfig_OverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseConfig)
	override := writeFile(t, dir, "override.yaml", "name: override\nsize: 1Mi\n")
	t.Setenv("BULKIMPORT_NESTED_VALUE", "7")

	var config testConfig
	_, err := LoadConfig(&config, dir, []string{override})
	require.NoError(t, err)

	assert.Equal(t, "override", config.Name)
	assert.Equal(t, int64(1024*1024), config.Size.Value())
	assert.Equal(t, uint16(8080), config.Port)
	assert.Equal(t, 7, config.Nested.Value)
}

func TestLoadConfig_MissingBase(t *testing.T) {
	var config testConfig
	_, err := LoadConfig(&config, t.TempDir(), nil)
	assert.Error(t, err)
}

func TestLoadConfig_MissingOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseConfig)

	var config testConfig
	_, err := LoadConfig(&config, dir, []string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}
