package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// objectSet owns the object files of one build. They live in a private
// scratch directory that close removes, whatever state the build ended in.
type objectSet struct {
	dir   string
	paths []string
}

func newObjectSet() (*objectSet, error) {
	dir, err := os.MkdirTemp("", "sddemake-obj-")
	if err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}
	return &objectSet{dir: dir}, nil
}

// alloc reserves a unique object path for src. The file itself is created by
// the compiler.
func (s *objectSet) alloc(src SourceFile) string {
	base := filepath.Base(src.Path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(s.dir, stem+"-"+uuid.NewString()+".o")
}

// add records obj as produced, in completion order
func (s *objectSet) add(obj string) {
	s.paths = append(s.paths, obj)
}

func (s *objectSet) objects() []string {
	return s.paths
}

func (s *objectSet) close() error {
	if s == nil || s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir, s.paths = "", nil
	return err
}
