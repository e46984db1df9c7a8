package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

// CurrentConfigSource reports which YAML file, if any, backs the env lookups.
func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  fileConfig.phase,
		Path:   fileConfig.path,
		Loaded: fileConfig.loaded,
	}, nil
}

type runtimeConfig struct {
	once   sync.Once
	err    error
	values map[string]string
	loaded bool
	path   string
	phase  string
}

var fileConfig = &runtimeConfig{}

func ensureRuntimeConfigLoaded() error {
	fileConfig.once.Do(fileConfig.load)
	return fileConfig.err
}

func (r *runtimeConfig) load() {
	r.values = make(map[string]string)

	phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
	if phase == "" {
		phase = "local"
	}
	r.phase = phase

	configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	explicitPath := configPath != ""
	if configPath == "" {
		configPath = filepath.Join("config", "config-"+phase+".yaml")
	}

	body, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicitPath {
			return
		}
		r.err = fmt.Errorf("read config file %q: %w", configPath, err)
		return
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(body, &raw); err != nil {
		r.err = fmt.Errorf("parse config file %q: %w", configPath, err)
		return
	}

	flattened, err := flattenConfig(raw)
	if err != nil {
		r.err = fmt.Errorf("flatten config file %q: %w", configPath, err)
		return
	}

	r.values = flattened
	r.loaded = true
	if absPath, err := filepath.Abs(configPath); err == nil {
		r.path = absPath
	} else {
		r.path = configPath
	}
}

// flattenConfig turns nested YAML into ENV_STYLE keys: redis.key_prefix -> REDIS_KEY_PREFIX.
func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int64, uint64, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

// valueForKey prefers the process environment over the YAML file.
func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}

	return strings.TrimSpace(fileConfig.values[key])
}
