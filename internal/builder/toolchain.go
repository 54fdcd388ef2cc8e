package builder

import (
	"fmt"
	"slices"
)

const (
	picFlag   = "-fPIC"
	debugFlag = "-g"
)

// Toolchain holds the command lines of one build. It is computed once from a
// Platform and a Config and never changes afterwards.
type Toolchain struct {
	platform Platform
	compile  map[Lang][]string
	link     []string
	output   string
}

// NewToolchain applies the platform policy on top of cfg
func NewToolchain(p Platform, cfg *Config) Toolchain {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var common []string
	for _, inc := range cfg.Build.Includes {
		common = append(common, "-I"+inc)
	}
	common = append(common, cfg.Toolchain.Cflags...)
	if p.NeedsPIC() {
		common = append(common, picFlag)
	}

	return Toolchain{
		platform: p,
		compile: map[Lang][]string{
			LangC:   slices.Concat(cfg.Toolchain.CC, common),
			LangCxx: slices.Concat(cfg.Toolchain.CXX, common),
		},
		link:   slices.Clone(cfg.Toolchain.LD),
		output: cfg.Build.Output + p.SharedLibExt(),
	}
}

func (tc Toolchain) Platform() Platform { return tc.platform }

// Output is the file name of the shared library
func (tc Toolchain) Output() string { return tc.output }

// CompilerFor returns a copy of the base argument list for lang
func (tc Toolchain) CompilerFor(lang Lang) ([]string, error) {
	args, ok := tc.compile[lang]
	if !ok || len(args) == 0 {
		return nil, fmt.Errorf("no compiler configured for language %q", lang)
	}
	return slices.Clone(args), nil
}

// CompileArgs builds the full argv that compiles src into obj
func (tc Toolchain) CompileArgs(src SourceFile, obj string, debug bool) ([]string, error) {
	args, err := tc.CompilerFor(src.Lang)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Path, err)
	}
	if debug {
		args = append(args, debugFlag)
	}
	return append(args, "-c", src.Path, "-o", obj), nil
}

// LinkArgs builds the argv that links objs into the shared library
func (tc Toolchain) LinkArgs(objs []string) []string {
	args := make([]string, 0, len(tc.link)+len(objs)+2)
	args = append(args, tc.link...)
	args = append(args, objs...)
	return append(args, "-o", tc.output)
}
