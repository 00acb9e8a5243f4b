// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text
// files and from an optional .env file. Each file in the directory represents
// one secret: the filename is the key name and the file contents (trimmed) are
// the value.
//
// Supported key files: usda-api-key, nutritionix-app-id, nutritionix-api-key,
// fatsecret-client-id, fatsecret-client-secret, openai-api-key,
// anthropic-api-key, groq-api-key, fireworks-api-key, cloudflare-account-id,
// cloudflare-api-token, serper-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadEnvFile reads KEY=value pairs from a dotenv file and returns them keyed
// by secret name: FATSECRET_CLIENT_ID becomes fatsecret-client-id. A missing
// file yields an empty map.
func LoadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	secrets := make(map[string]string, len(env))
	for k, v := range env {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		secrets[KeyName(k)] = v
	}
	return secrets, nil
}

// KeyName converts an environment variable name to a secret key name.
func KeyName(envVar string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(envVar)), "_", "-")
}

// Merge overlays later maps onto earlier ones. Values from later maps win.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
