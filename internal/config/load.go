package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Load reads a configuration file, decoding YAML for .yaml/.yml and JSON for
// everything else. BaseDir is set to the file's directory and defaults are
// applied. Load does not validate; call Validate on the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	c, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.BaseDir = filepath.Dir(path)
	return c, nil
}

// Decode parses raw configuration bytes. ext selects the format (".yaml",
// ".yml", or anything else for JSON). Defaults are applied.
func Decode(b []byte, ext string) (Config, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Config{}, fmt.Errorf("empty configuration")
	}
	var c Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		if err := dec.Decode(&c); err != nil {
			return Config{}, err
		}
	}
	c.ApplyDefaults()
	return c, nil
}
