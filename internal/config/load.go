// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	kenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. Double underscores separate
// nesting levels: PLANTLOGGER_SMTP__HOST sets smtp.host.
const EnvPrefix = "PLANTLOGGER_"

// Options controls where Load reads from.
type Options struct {
	// File is an optional YAML config path.
	File string

	// Flags, when set, contributes explicitly changed flags. FlagKeys maps
	// flag names to config keys; unmapped flags are ignored.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string

	// LegacyEnv replaces the process environment for legacy variables.
	// Tests set it; nil reads os.Environ.
	LegacyEnv map[string]string
}

// Load merges, lowest precedence first: built-in defaults, the config
// file, legacy environment variables, PLANTLOGGER_ variables, and changed
// flags. The result is not validated.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	defaults, err := defaultKeys()
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load defaults")
	}

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrapf(err, "read config file")
		}
		if err := ValidateFile(data); err != nil {
			return nil, oops.With("file", opts.File).Wrap(err)
		}
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrapf(err, "load config file")
		}
	}

	legacy, err := parseLegacyEnv(opts.LegacyEnv)
	if err != nil {
		return nil, err
	}
	legacyKeys, err := legacy.keys()
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(legacyKeys, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load legacy environment")
	}

	if err := k.Load(kenv.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load environment")
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode configuration")
	}
	return &cfg, nil
}

// envKey maps PLANTLOGGER_EMAIL_CHANGE__CODE_TTL to email_change.code_ttl.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// defaultKeys flattens Default() into koanf keys by way of its YAML form.
func defaultKeys() (map[string]any, error) {
	data, err := yamlv3.Marshal(Default())
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "encode defaults")
	}
	var nested map[string]any
	if err := yamlv3.Unmarshal(data, &nested); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode defaults")
	}
	out := map[string]any{}
	flatten("", nested, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			flatten(full, child, out)
			continue
		}
		out[full] = value
	}
}
