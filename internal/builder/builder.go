package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sddekit/sddemake/internal/msg"
)

// Options tune a Builder. The zero value builds for the host with the
// default toolchain.
type Options struct {
	// Platform selects the toolchain policy; empty fields default to the host
	Platform Platform
	// Debug adds -g to every compile
	Debug bool
	// ConfigFile is resolved against the project directory. When empty,
	// SDDEKit.toml is used if it exists.
	ConfigFile string
	// Runner defaults to an ExecRunner working in the project directory
	Runner Runner
}

type Builder struct {
	basedir string
	cfg     *Config
	tc      Toolchain
	debug   bool
	runner  Runner
}

// NewBuilderInDirectory prepares a build of the project rooted at path. Tools
// run with path as their working directory, so relative include paths and
// the output file resolve against it.
func NewBuilderInDirectory(path string, opts Options) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	host := HostPlatform()
	if opts.Platform.OS == "" {
		opts.Platform.OS = host.OS
	}
	if opts.Platform.Arch == "" {
		opts.Platform.Arch = host.Arch
	}

	cfg, err := loadConfig(path, opts.ConfigFile, NewConfigEnv(opts.Platform, opts.Debug))
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner(path)
	}

	return &Builder{
		basedir: path,
		cfg:     cfg,
		tc:      NewToolchain(opts.Platform, cfg),
		debug:   opts.Debug,
		runner:  runner,
	}, nil
}

func loadConfig(basedir, name string, env ConfigEnv) (*Config, error) {
	explicit := name != ""
	if !explicit {
		name = ConfigFilename
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(basedir, name)
	}

	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) && !explicit {
		return DefaultConfig(), nil
	}

	cfg, err := ParseConfigFromFile(name, env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	msg.Trace("loaded config %s", name)
	return cfg, nil
}

func (b *Builder) Toolchain() Toolchain { return b.tc }

// SourceRoot is the directory searched for sources
func (b *Builder) SourceRoot() string {
	if filepath.IsAbs(b.cfg.Build.Sources) {
		return b.cfg.Build.Sources
	}
	return filepath.Join(b.basedir, b.cfg.Build.Sources)
}

// OutputPath is where the shared library ends up
func (b *Builder) OutputPath() string {
	if filepath.IsAbs(b.tc.Output()) {
		return b.tc.Output()
	}
	return filepath.Join(b.basedir, b.tc.Output())
}

// Build compiles every source below the source root, one at a time, and
// links the objects into the shared library. The first failure ends the
// build; object files are removed on every path.
func (b *Builder) Build(ctx context.Context) error {
	objs, err := newObjectSet()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := objs.close(); cerr != nil {
			msg.Warn("failed to remove object files: %v", cerr)
		}
	}()

	for src, err := range LocateSources(b.SourceRoot()) {
		if err != nil {
			return err
		}
		if err := b.compile(ctx, objs, src); err != nil {
			return err
		}
	}

	if len(objs.objects()) == 0 {
		msg.Warn("no C or C++ sources found in %s", b.rel(b.SourceRoot()))
	}

	return b.link(ctx, objs.objects())
}

func (b *Builder) compile(ctx context.Context, objs *objectSet, src SourceFile) error {
	obj := objs.alloc(src)
	argv, err := b.tc.CompileArgs(src, obj, b.debug)
	if err != nil {
		return err
	}

	msg.Step("CC", b.rel(src.Path))
	if err := b.run(ctx, argv); err != nil {
		return fmt.Errorf("compilation of %s failed: %w", b.rel(src.Path), err)
	}
	objs.add(obj)
	return nil
}

func (b *Builder) link(ctx context.Context, objs []string) error {
	argv := b.tc.LinkArgs(objs)

	msg.Step("LINK", b.tc.Output())
	if err := b.run(ctx, argv); err != nil {
		return fmt.Errorf("linking %s failed: %w", b.tc.Output(), err)
	}
	return nil
}

func (b *Builder) run(ctx context.Context, argv []string) error {
	msg.Trace("%s", msg.Command(argv))
	_, err := b.runner.Run(ctx, argv)
	return err
}

// rel shortens path for display
func (b *Builder) rel(path string) string {
	if rel, err := filepath.Rel(b.basedir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
