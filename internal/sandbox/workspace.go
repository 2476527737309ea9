package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codemonster/judge/internal/langs"
	"github.com/google/uuid"
)

const inputFileName = "input.txt"

// WorkspaceStore manages the uuid-named directories that are bind-mounted
// into sandbox containers. Each workspace is owned by exactly one
// execution (or one compile-then-clone chain).
type WorkspaceStore struct {
	root string
}

func NewWorkspaceStore(root string) (*WorkspaceStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &WorkspaceStore{root: root}, nil
}

// Create materializes a fresh workspace holding the normalized source file
// for the given profile. It returns the workspace path.
func (s *WorkspaceStore) Create(profile langs.Profile, code string) (string, error) {
	dir := filepath.Join(s.root, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	src := langs.NormalizeSource(profile, code)
	if err := os.WriteFile(filepath.Join(dir, profile.SourceFile), []byte(src), 0644); err != nil {
		s.Remove(dir)
		return "", fmt.Errorf("write source file: %w", err)
	}
	return dir, nil
}

// Clone copies an existing workspace into a new uuid-named directory.
// Cloning is what makes compile-once/run-many safe: every run gets its own
// copy, so overwriting input.txt in one case cannot leak into another.
func (s *WorkspaceStore) Clone(ref string) (string, error) {
	entries, err := os.ReadDir(ref)
	if err != nil {
		return "", fmt.Errorf("read workspace %s: %w", ref, err)
	}
	dir := filepath.Join(s.root, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace clone: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(ref, e.Name()), filepath.Join(dir, e.Name())); err != nil {
			s.Remove(dir)
			return "", fmt.Errorf("clone workspace file %s: %w", e.Name(), err)
		}
	}
	return dir, nil
}

// WriteInput places the per-run stdin file into the workspace.
func (s *WorkspaceStore) WriteInput(ref string, input string) error {
	if err := os.WriteFile(filepath.Join(ref, inputFileName), []byte(input), 0644); err != nil {
		return fmt.Errorf("write input file: %w", err)
	}
	return nil
}

// Remove deletes a workspace. It is idempotent and never fails on a
// missing directory.
func (s *WorkspaceStore) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	return os.RemoveAll(ref)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
