package builder

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Lang is the language tag of a source file
type Lang string

const (
	LangC   Lang = "C"
	LangCxx Lang = "C++"
)

// sourcePattern matches every recognized source file below the root
const sourcePattern = "**/*.{c,cpp}"

var (
	ErrSourceRoot = errors.New("cannot read source root")
	errStopWalk   = errors.New("stop walk")
)

// SourceFile is a discovered source file and the language it is compiled as
type SourceFile struct {
	Path string
	Lang Lang
}

// langFromExt maps an extension (with the dot) to its language tag
func langFromExt(ext string) (Lang, bool) {
	switch ext {
	case ".c":
		return LangC, true
	case ".cpp":
		return LangCxx, true
	}
	return "", false
}

// sourceExt returns the extension of a file name. Leading dots belong to the
// stem, so ".c" and "..cpp" have no extension.
func sourceExt(name string) string {
	if !strings.Contains(strings.TrimLeft(name, "."), ".") {
		return ""
	}
	return filepath.Ext(name)
}

// LocateSources lazily yields every .c and .cpp file below root. Order follows
// the directory walk. A missing or unreadable root yields a single error
// wrapping ErrSourceRoot.
func LocateSources(root string) iter.Seq2[SourceFile, error] {
	return func(yield func(SourceFile, error) bool) {
		stat, err := os.Stat(root)
		if err != nil {
			yield(SourceFile{}, fmt.Errorf("%w %s: %w", ErrSourceRoot, root, err))
			return
		}
		if !stat.IsDir() {
			yield(SourceFile{}, fmt.Errorf("%w %s: not a directory", ErrSourceRoot, root))
			return
		}

		err = doublestar.GlobWalk(os.DirFS(root), sourcePattern, func(rel string, d fs.DirEntry) error {
			lang, ok := langFromExt(sourceExt(path.Base(rel)))
			if !ok {
				return nil
			}
			if !yield(SourceFile{Path: filepath.Join(root, filepath.FromSlash(rel)), Lang: lang}, nil) {
				return errStopWalk
			}
			return nil
		}, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())

		if err != nil && !errors.Is(err, errStopWalk) {
			yield(SourceFile{}, fmt.Errorf("%w %s: %w", ErrSourceRoot, root, err))
		}
	}
}
