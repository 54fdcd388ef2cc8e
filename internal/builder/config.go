package builder

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pelletier/go-toml/v2"
)

// ConfigFilename is looked up in the project directory when no --config is given
const ConfigFilename = "SDDEKit.toml"

type Config struct {
	Build     BuildSection     `toml:"build"`
	Toolchain ToolchainSection `toml:"toolchain"`
}

// BuildSection defines the [build] section
type BuildSection struct {
	Sources  string   `toml:"sources"`
	Includes []string `toml:"includes"`
	Output   string   `toml:"output"`
}

// ToolchainSection defines the [toolchain] section
type ToolchainSection struct {
	CC     []string `toml:"cc"`
	CXX    []string `toml:"cxx"`
	LD     []string `toml:"ld"`
	Cflags []string `toml:"cflags"`
}

// DefaultConfig is what a project without SDDEKit.toml builds with
func DefaultConfig() *Config {
	return &Config{
		Build: BuildSection{
			Sources:  "lib/src",
			Includes: []string{"lib/include"},
			Output:   "libSDDEKit",
		},
		Toolchain: ToolchainSection{
			CC:  []string{"gcc", "-std=c99"},
			CXX: []string{"g++"},
			LD:  []string{"gcc", "-shared", "-lm"},
		},
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Build.Sources == "" {
		errs = append(errs, errors.New("build.sources must not be empty"))
	}
	if c.Build.Output == "" {
		errs = append(errs, errors.New("build.output must not be empty"))
	}
	if len(c.Toolchain.CC) == 0 {
		errs = append(errs, errors.New("toolchain.cc must name a compiler"))
	}
	if len(c.Toolchain.CXX) == 0 {
		errs = append(errs, errors.New("toolchain.cxx must name a compiler"))
	}
	if len(c.Toolchain.LD) == 0 {
		errs = append(errs, errors.New("toolchain.ld must name a linker"))
	}
	return errors.Join(errs...)
}

// ConfigEnv is what expressions in the config file can see
type ConfigEnv struct {
	TargetOS   string `expr:"target_os"`
	TargetArch string `expr:"target_arch"`
	Debug      bool   `expr:"debug"`
}

func NewConfigEnv(p Platform, debug bool) ConfigEnv {
	return ConfigEnv{TargetOS: p.OS, TargetArch: p.Arch, Debug: debug}
}

// mergeSection copies the set fields of src into dst. Slices are appended when
// appendSlices is true and replaced otherwise.
func mergeSection[T any](dst *T, src T, appendSlices bool) {
	dstVal := reflect.ValueOf(dst).Elem()
	srcVal := reflect.ValueOf(src)
	for i := range srcVal.NumField() {
		field := srcVal.Field(i)
		if field.IsZero() {
			continue
		}
		if appendSlices && field.Kind() == reflect.Slice {
			field = reflect.AppendSlice(dstVal.Field(i), field)
		}
		dstVal.Field(i).Set(field)
	}
}

// decodeInto round-trips a raw table through TOML into a fresh T and merges it
// into dst
func decodeInto[T any](table map[string]any, dst *T, appendSlices bool) error {
	data, err := toml.Marshal(table)
	if err != nil {
		return err
	}
	var section T
	if err := toml.Unmarshal(data, &section); err != nil {
		return err
	}
	mergeSection(dst, section, appendSlices)
	return nil
}

// decodeSection applies the [name] table over dst. Plain keys replace the
// defaults. Sub-tables keyed by an expression are applied in key order when
// the expression is true, appending to slices.
func decodeSection[T any](raw map[string]any, name string, dst *T, env ConfigEnv) error {
	data, ok := raw[name]
	if !ok {
		return nil
	}
	table, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	base := map[string]any{}
	conds := map[string]*vm.Program{}
	for key, val := range table {
		if _, isTable := val.(map[string]any); isTable {
			if program, err := expr.Compile(key, expr.Env(env), expr.AsBool()); err == nil {
				conds[key] = program
				continue
			}
		}
		base[key] = val
	}

	if err := decodeInto(base, dst, false); err != nil {
		return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
	}

	for _, cond := range slices.Sorted(maps.Keys(conds)) {
		matched, err := expr.Run(conds[cond], env)
		if err != nil {
			return fmt.Errorf("failed to run expression for [%s.%q]: %w", name, cond, err)
		}
		if !matched.(bool) {
			continue
		}
		if err := decodeInto(table[cond].(map[string]any), dst, true); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, cond, err)
		}
	}
	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// interpolate replaces every {{...}} in s with the value of the expression
func interpolate(s string, env ConfigEnv) (string, error) {
	var firstErr error
	out := exprRegex.ReplaceAllStringFunc(s, func(m string) string {
		code := strings.TrimSpace(exprRegex.FindStringSubmatch(m)[1])
		program, err := expr.Compile(code, expr.Env(env))
		if err != nil {
			firstErr = cmp.Or(firstErr, fmt.Errorf("failed to compile expression %q: %w", code, err))
			return m
		}
		val, err := expr.Run(program, env)
		if err != nil {
			firstErr = cmp.Or(firstErr, fmt.Errorf("failed to run expression %q: %w", code, err))
			return m
		}
		return fmt.Sprint(val)
	})
	return out, firstErr
}

// interpolateTree interpolates every string in a decoded TOML tree in place
func interpolateTree(node any, env ConfigEnv) (any, error) {
	var err error
	switch v := node.(type) {
	case string:
		return interpolate(v, env)
	case map[string]any:
		for key, val := range v {
			if v[key], err = interpolateTree(val, env); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, val := range v {
			if v[i], err = interpolateTree(val, env); err != nil {
				return nil, err
			}
		}
	}
	return node, nil
}

// ParseConfig reads a config file over DefaultConfig
func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	if err := toml.NewDecoder(rdr).Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	if _, err := interpolateTree(rawConfig, env); err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}

	cfg := DefaultConfig()
	if err := decodeSection(rawConfig, "build", &cfg.Build, env); err != nil {
		return nil, err
	}
	if err := decodeSection(rawConfig, "toolchain", &cfg.Toolchain, env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseConfigFromFile parses and validates a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseConfig(bufio.NewReader(f), env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
