package builder

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/sddekit/sddemake/internal/msg"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	msg.Out = io.Discard
	os.Exit(m.Run())
}

// fakeRunner records every argv. It fails the call numbered failOn (1-based)
// and can simulate the tools by touching their -o target.
type fakeRunner struct {
	dir    string
	calls  [][]string
	failOn int
	touch  bool
}

func (r *fakeRunner) Run(ctx context.Context, argv []string) (Result, error) {
	r.calls = append(r.calls, slices.Clone(argv))
	if len(r.calls) == r.failOn {
		return Result{ExitCode: 1}, &ExitError{Argv: argv, Code: 1}
	}
	if r.touch {
		out := argv[slices.Index(argv, "-o")+1]
		if !filepath.IsAbs(out) {
			out = filepath.Join(r.dir, out)
		}
		if err := os.WriteFile(out, []byte(filepath.Base(argv[0])), 0o644); err != nil {
			return Result{}, err
		}
	}
	return Result{}, nil
}

func (r *fakeRunner) compileCalls() [][]string {
	var calls [][]string
	for _, c := range r.calls {
		if slices.Contains(c, "-c") {
			calls = append(calls, c)
		}
	}
	return calls
}

func (r *fakeRunner) linkCalls() [][]string {
	var calls [][]string
	for _, c := range r.calls {
		if slices.Contains(c, "-shared") {
			calls = append(calls, c)
		}
	}
	return calls
}

// outputOf returns the value following -o
func outputOf(argv []string) string {
	return argv[slices.Index(argv, "-o")+1]
}

// newProject creates a project directory with the given files below lib/src
func newProject(t *testing.T, sources ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "include"), 0o755))
	for _, src := range sources {
		path := filepath.Join(dir, "lib", "src", filepath.FromSlash(src))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("int x;\n"), 0o644))
	}
	return dir
}

func newTestBuilder(t *testing.T, dir string, opts Options) (*Builder, *fakeRunner) {
	t.Helper()
	runner, ok := opts.Runner.(*fakeRunner)
	if !ok {
		runner = &fakeRunner{}
	}
	runner.dir = dir
	opts.Runner = runner
	if opts.Platform.OS == "" {
		opts.Platform = Platform{OS: "linux", Arch: "amd64"}
	}
	b, err := NewBuilderInDirectory(dir, opts)
	require.NoError(t, err)
	return b, runner
}

func TestBuildCAndCxx(t *testing.T) {
	dir := newProject(t, "a.c", "b.cpp")
	b, runner := newTestBuilder(t, dir, Options{})

	require.NoError(t, b.Build(context.Background()))

	compiles := runner.compileCalls()
	require.Len(t, compiles, 2)
	require.Len(t, runner.calls, 3)

	bySource := map[string][]string{}
	for _, c := range compiles {
		bySource[filepath.Base(c[slices.Index(c, "-c")+1])] = c
	}

	cCall := bySource["a.c"]
	require.Equal(t, []string{"gcc", "-std=c99", "-Ilib/include", "-fPIC", "-c", filepath.Join(dir, "lib", "src", "a.c"), "-o"}, cCall[:7])
	cxxCall := bySource["b.cpp"]
	require.Equal(t, []string{"g++", "-Ilib/include", "-fPIC", "-c", filepath.Join(dir, "lib", "src", "b.cpp"), "-o"}, cxxCall[:6])
	require.NotContains(t, cCall, "-g")
	require.NotContains(t, cxxCall, "-g")

	link := runner.calls[2]
	want := []string{"gcc", "-shared", "-lm", outputOf(compiles[0]), outputOf(compiles[1]), "-o", "libSDDEKit.dll"}
	require.Equal(t, want, link)
	require.Equal(t, filepath.Join(dir, "libSDDEKit.dll"), b.OutputPath())
}

func TestBuildDebugFlag(t *testing.T) {
	for _, debug := range []bool{true, false} {
		dir := newProject(t, "a.c", "sub/b.cpp", "sub/deeper/c.c")
		b, runner := newTestBuilder(t, dir, Options{Debug: debug})

		require.NoError(t, b.Build(context.Background()))

		compiles := runner.compileCalls()
		require.Len(t, compiles, 3)
		for _, c := range compiles {
			require.Equal(t, debug, slices.Contains(c, "-g"), "argv %v", c)
		}
		require.NotContains(t, runner.linkCalls()[0], "-g")
	}
}

func TestBuildOneObjectPerSource(t *testing.T) {
	dir := newProject(t, "a.c", "a.cpp", "x/a.c", "notes.txt", "a.h")
	b, runner := newTestBuilder(t, dir, Options{})

	require.NoError(t, b.Build(context.Background()))

	compiles := runner.compileCalls()
	require.Len(t, compiles, 3)
	require.Len(t, runner.linkCalls(), 1)

	seen := map[string]bool{}
	for _, c := range compiles {
		obj := outputOf(c)
		require.False(t, seen[obj], "object %s allocated twice", obj)
		seen[obj] = true
	}
}

func TestBuildCompileFailureSkipsLink(t *testing.T) {
	dir := newProject(t, "a.c", "b.c", "c.c")
	b, runner := newTestBuilder(t, dir, Options{Runner: &fakeRunner{failOn: 2, touch: true}})

	err := b.Build(context.Background())
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.Code)

	require.Len(t, runner.calls, 2)
	require.Empty(t, runner.linkCalls())

	objDir := filepath.Dir(outputOf(runner.calls[0]))
	require.NoDirExists(t, objDir)
	require.NoFileExists(t, filepath.Join(dir, "libSDDEKit.dll"))
}

func TestBuildLinkFailure(t *testing.T) {
	dir := newProject(t, "a.c")
	b, runner := newTestBuilder(t, dir, Options{Runner: &fakeRunner{failOn: 2}})

	err := b.Build(context.Background())
	require.ErrorContains(t, err, "linking libSDDEKit.dll failed")
	require.Len(t, runner.linkCalls(), 1)
}

func TestBuildNoSources(t *testing.T) {
	dir := newProject(t, "README.md")
	b, runner := newTestBuilder(t, dir, Options{})

	require.NoError(t, b.Build(context.Background()))
	require.Equal(t, [][]string{{"gcc", "-shared", "-lm", "-o", "libSDDEKit.dll"}}, runner.calls)
}

func TestBuildMissingSourceRoot(t *testing.T) {
	dir := t.TempDir()
	b, runner := newTestBuilder(t, dir, Options{})

	err := b.Build(context.Background())
	require.ErrorIs(t, err, ErrSourceRoot)
	require.Empty(t, runner.calls)
}

func TestBuildRemovesObjects(t *testing.T) {
	dir := newProject(t, "a.c", "b.cpp")
	b, runner := newTestBuilder(t, dir, Options{Runner: &fakeRunner{touch: true}})

	require.NoError(t, b.Build(context.Background()))

	for _, c := range runner.compileCalls() {
		require.NoFileExists(t, outputOf(c))
	}
	require.FileExists(t, b.OutputPath())
}

func TestBuildTwiceOverwrites(t *testing.T) {
	dir := newProject(t, "a.c")
	out := filepath.Join(dir, "libSDDEKit.dll")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	for range 2 {
		b, _ := newTestBuilder(t, dir, Options{Runner: &fakeRunner{touch: true}})
		require.NoError(t, b.Build(context.Background()))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		require.Equal(t, "gcc", string(data))
	}
}

func TestBuildPlatformOutput(t *testing.T) {
	tests := []struct {
		os      string
		output  string
		withPIC bool
	}{
		{"linux", "libSDDEKit.dll", true},
		{"windows", "libSDDEKit.so", false},
		{"darwin", "libSDDEKit.dylib", true},
	}

	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			dir := newProject(t, "a.c")
			b, runner := newTestBuilder(t, dir, Options{Platform: Platform{OS: tt.os, Arch: "amd64"}})

			require.NoError(t, b.Build(context.Background()))
			require.Equal(t, tt.withPIC, slices.Contains(runner.compileCalls()[0], "-fPIC"))
			require.Equal(t, tt.output, outputOf(runner.linkCalls()[0]))
		})
	}
}

func TestBuildWithConfig(t *testing.T) {
	dir := newProject(t, "a.c")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "z.c"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(`
[build]
sources = "src"
output = "libSDDEKit-{{ target_arch }}"

[toolchain.'target_os == "linux"']
cflags = ["-Wall"]
`), 0o644))

	b, runner := newTestBuilder(t, dir, Options{})
	require.NoError(t, b.Build(context.Background()))

	compiles := runner.compileCalls()
	require.Len(t, compiles, 1)
	require.Equal(t, []string{"gcc", "-std=c99", "-Ilib/include", "-Wall", "-fPIC", "-c", filepath.Join(dir, "src", "z.c")}, compiles[0][:7])
	require.Equal(t, "libSDDEKit-amd64.dll", outputOf(runner.linkCalls()[0]))
}

func TestBuildAbsoluteOutput(t *testing.T) {
	dir := newProject(t, "a.c")
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(
		"[build]\noutput = '"+filepath.Join(outDir, "libSDDEKit")+"'\n"), 0o644))

	b, runner := newTestBuilder(t, dir, Options{Runner: &fakeRunner{touch: true}})
	require.NoError(t, b.Build(context.Background()))

	want := filepath.Join(outDir, "libSDDEKit.dll")
	require.Equal(t, want, b.OutputPath())
	require.Equal(t, want, outputOf(runner.linkCalls()[0]))
	require.FileExists(t, want)
}

func TestBuildExplicitConfigMissing(t *testing.T) {
	dir := newProject(t, "a.c")
	_, err := NewBuilderInDirectory(dir, Options{ConfigFile: "missing.toml", Runner: &fakeRunner{}})
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuildCancelled(t *testing.T) {
	dir := newProject(t, "a.c")
	b, err := NewBuilderInDirectory(dir, Options{Runner: &DryRunner{W: io.Discard}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Build(ctx), context.Canceled)
}
