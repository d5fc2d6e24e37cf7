package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry()
	registry.Register("echo", func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return payload, nil
	})

	result, err := registry.Execute(context.Background(), "echo", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, result)
}

func TestRegistryUnknownType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Execute(context.Background(), "mystery", nil)
	require.ErrorIs(t, err, ErrUnknownCommandType)
	assert.Contains(t, err.Error(), "mystery")
}

func TestRegistryHandlerError(t *testing.T) {
	registry := NewRegistry()
	boom := errors.New("boom")
	registry.Register("bad", func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return nil, boom
	})

	_, err := registry.Execute(context.Background(), "bad", nil)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryRecoversPanic(t *testing.T) {
	registry := NewRegistry()
	registry.Register("panics", func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		panic("handler bug")
	})

	result, err := registry.Execute(context.Background(), "panics", nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "panicked")
}

func TestPing(t *testing.T) {
	result, err := Ping()(context.Background(), map[string]any{"probe": "x"})
	require.NoError(t, err)
	assert.Equal(t, "pong", result["message"])
	assert.Equal(t, map[string]any{"probe": "x"}, result["echo"])
}

func TestReloadConfig(t *testing.T) {
	called := false
	handler := ReloadConfig(func() error {
		called = true
		return nil
	})

	result, err := handler(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, true, result["reloaded"])

	failing := ReloadConfig(func() error { return errors.New("no config") })
	_, err = failing(context.Background(), nil)
	assert.Error(t, err)
}

func TestUpdateConfigMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	initial := map[string]any{"interval": 30, "keep": "me"}
	data, err := yaml.Marshal(initial)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	handler := UpdateConfig(path)
	result, err := handler(context.Background(), map[string]any{
		"config": map[string]any{"interval": 60},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"interval"}, result["updated_keys"])

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	var updated map[string]any
	require.NoError(t, yaml.Unmarshal(written, &updated))
	assert.Equal(t, 60, updated["interval"])
	assert.Equal(t, "me", updated["keep"])
}

func TestUpdateConfigMissingPayload(t *testing.T) {
	handler := UpdateConfig(filepath.Join(t.TempDir(), "agent.yaml"))

	_, err := handler(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestChangeRole(t *testing.T) {
	var applied string
	handler := ChangeRole(func(role string) error {
		applied = role
		return nil
	})

	result, err := handler(context.Background(), map[string]any{"role": "relay"})
	require.NoError(t, err)
	assert.Equal(t, "relay", applied)
	assert.Equal(t, "relay", result["role"])

	_, err = handler(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hello $1\n"), 0o755))

	handler := RunScript(map[string]string{"hello": script}, 5*time.Second)

	result, err := handler(context.Background(), map[string]any{
		"script": "hello",
		"args":   []any{"world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result["script"])
	assert.Equal(t, "hello world\n", result["output"])
}

func TestRunScriptNotAllowlisted(t *testing.T) {
	handler := RunScript(map[string]string{}, time.Second)

	_, err := handler(context.Background(), map[string]any{"script": "rogue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowlisted")
}

func TestRunScriptMissingName(t *testing.T) {
	handler := RunScript(map[string]string{}, time.Second)

	_, err := handler(context.Background(), nil)
	require.Error(t, err)
}

func TestRunScriptTimeout(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	handler := RunScript(map[string]string{"slow": script}, 100*time.Millisecond)

	_, err := handler(context.Background(), map[string]any{"script": "slow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
