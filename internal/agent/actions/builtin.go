package actions

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ping answers with a timestamp and echoes the payload, for
// connectivity checks.
func Ping() Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		result := map[string]any{
			"message":   "pong",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if len(payload) > 0 {
			result["echo"] = payload
		}
		return result, nil
	}
}

// ReloadConfig invokes the agent's reload hook.
func ReloadConfig(reload func() error) Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		if err := reload(); err != nil {
			return nil, fmt.Errorf("reload failed: %w", err)
		}
		return map[string]any{"reloaded": true}, nil
	}
}

// UpdateConfig merges the payload's "config" map into the YAML file at
// configPath. Keys not mentioned keep their current values.
func UpdateConfig(configPath string) Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		updates, ok := payload["config"].(map[string]any)
		if !ok || len(updates) == 0 {
			return nil, fmt.Errorf("payload is missing a config map")
		}

		current := map[string]any{}
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, &current); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		for k, v := range updates {
			current[k] = v
		}

		data, err := yaml.Marshal(current)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write config file: %w", err)
		}

		keys := make([]string, 0, len(updates))
		for k := range updates {
			keys = append(keys, k)
		}
		return map[string]any{"updated_keys": keys}, nil
	}
}

// RunScript executes an allowlisted script named in the payload. The
// allowlist maps script names to executable paths; anything not listed
// is rejected before touching the filesystem.
func RunScript(allowlist map[string]string, timeout time.Duration) Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		name, ok := payload["script"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("payload is missing a script name")
		}
		path, ok := allowlist[name]
		if !ok {
			return nil, fmt.Errorf("script %q is not allowlisted", name)
		}

		var args []string
		if raw, ok := payload["args"].([]any); ok {
			for _, a := range raw {
				args = append(args, fmt.Sprint(a))
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		output, err := exec.CommandContext(runCtx, path, args...).CombinedOutput()
		if err != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("script %q timed out after %s", name, timeout)
			}
			return nil, fmt.Errorf("script %q failed: %w: %s", name, err, strings.TrimSpace(string(output)))
		}

		return map[string]any{
			"script": name,
			"output": string(output),
		}, nil
	}
}

// ChangeRole validates the requested role and hands it to the agent's
// apply hook, which persists it.
func ChangeRole(apply func(role string) error) Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		role, ok := payload["role"].(string)
		if !ok || role == "" {
			return nil, fmt.Errorf("payload is missing a role")
		}
		if err := apply(role); err != nil {
			return nil, fmt.Errorf("role change failed: %w", err)
		}
		return map[string]any{"role": role}, nil
	}
}
