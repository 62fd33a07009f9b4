package taskconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-signal/internal/tasks"
)

// Load reads YAML file and returns Config with raw bytes
// 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes and validates override YAML
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode task config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Hash generates SHA256 hash from Config (canonical JSON).
// encoding/json sorts map keys, so equal configs hash equally.
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Apply writes overrides into the registry in name order.
// Unknown task names fail before anything is changed.
func Apply(reg *tasks.Registry, cfg *Config) error {
	if cfg == nil {
		return nil
	}

	names := make([]string, 0, len(cfg.Tasks))
	for name := range cfg.Tasks {
		if _, ok := reg.Lookup(name); !ok {
			return ValidationError{"tasks." + name, "unknown task"}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		o := cfg.Tasks[name]
		if o.Enabled != nil {
			if err := reg.SetEnabled(name, *o.Enabled); err != nil {
				return err
			}
		}
		if o.Timeout != "" {
			d, _ := time.ParseDuration(o.Timeout) // Validate 통과한 값
			if err := reg.SetTimeout(name, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Disable turns off each named task (TASKS_DISABLED)
func Disable(reg *tasks.Registry, names []string) error {
	for _, name := range names {
		if err := reg.SetEnabled(name, false); err != nil {
			return err
		}
	}
	return nil
}
