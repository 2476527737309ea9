package langs

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnsupportedLanguage is returned by Resolve for unknown language ids.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Profile describes how one language is compiled and run inside its
// sandbox image. Profiles are immutable after registry construction.
type Profile struct {
	ID             string `toml:"id"`
	Name           string `toml:"name"`
	Extension      string `toml:"extension"`
	Image          string `toml:"image"`
	CompileCommand string `toml:"compile_command"`
	RunCommand     string `toml:"run_command"`
	SourceFile     string `toml:"source_file"`
	TimeLimitSec   int    `toml:"time_limit_sec"`
	MemoryLimitMB  int    `toml:"memory_limit_mb"`
	HelloWorld     string `toml:"hello_world"`
}

// NeedsCompilation reports whether the profile has a separate compile step.
func (p Profile) NeedsCompilation() bool {
	return p.CompileCommand != ""
}

type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry preloaded with the built-in language table.
func NewRegistry() *Registry {
	r := &Registry{profiles: map[string]Profile{}}
	for _, p := range builtinProfiles() {
		r.profiles[p.ID] = p
	}
	return r
}

// LoadFile merges profiles from a TOML file into the registry. Entries with
// an id that already exists replace the built-in profile.
func (r *Registry) LoadFile(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read language file: %w", err)
	}
	var doc struct {
		Languages []Profile `toml:"languages"`
	}
	if err := toml.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parse language file: %w", err)
	}
	for _, p := range doc.Languages {
		if p.ID == "" || p.Image == "" || p.RunCommand == "" || p.SourceFile == "" {
			return fmt.Errorf("language file: incomplete profile %q", p.ID)
		}
		p.ID = strings.ToUpper(p.ID)
		r.profiles[p.ID] = p
	}
	return nil
}

// Resolve looks up a profile by id. Matching is case-insensitive.
func (r *Registry) Resolve(id string) (Profile, error) {
	p, ok := r.profiles[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, id)
	}
	return p, nil
}

// Supported reports whether the id resolves to a profile.
func (r *Registry) Supported(id string) bool {
	_, err := r.Resolve(id)
	return err == nil
}

// List returns all profiles ordered by id.
func (r *Registry) List() []Profile {
	res := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

var javaPublicClassRe = regexp.MustCompile(`public\s+class\s+\w+`)

// NormalizeSource rewrites the submitted code so that it matches the
// profile's fixed source filename convention. For Java that means forcing
// the public class name to Solution; other languages pass through.
func NormalizeSource(p Profile, code string) string {
	if p.ID == "JAVA" {
		return javaPublicClassRe.ReplaceAllString(code, "public class Solution")
	}
	return code
}

func builtinProfiles() []Profile {
	return []Profile{
		{
			ID:            "PYTHON",
			Name:          "Python 3",
			Extension:     "py",
			Image:         "codemonster-python:latest",
			RunCommand:    "python3 /workspace/solution.py",
			SourceFile:    "solution.py",
			TimeLimitSec:  5,
			MemoryLimitMB: 128,
			HelloWorld:    `print("hello")`,
		},
		{
			ID:             "JAVA",
			Name:           "Java",
			Extension:      "java",
			Image:          "codemonster-java:latest",
			CompileCommand: "javac -cp /workspace /workspace/Solution.java",
			RunCommand:     "java -cp /workspace Solution",
			SourceFile:     "Solution.java",
			TimeLimitSec:   10,
			MemoryLimitMB:  512,
			HelloWorld:     "public class Solution { public static void main(String[] a) { System.out.println(\"hello\"); } }",
		},
		{
			ID:             "CPP",
			Name:           "C++17",
			Extension:      "cpp",
			Image:          "codemonster-cpp:latest",
			CompileCommand: "g++ -o /workspace/solution /workspace/solution.cpp -std=c++17 -O2",
			RunCommand:     "/workspace/solution",
			SourceFile:     "solution.cpp",
			TimeLimitSec:   10,
			MemoryLimitMB:  512,
			HelloWorld:     "#include <cstdio>\nint main(){puts(\"hello\");}",
		},
		{
			ID:             "GO",
			Name:           "Go",
			Extension:      "go",
			Image:          "codemonster-go:latest",
			CompileCommand: "go build -o /workspace/solution /workspace/solution.go",
			RunCommand:     "/workspace/solution",
			SourceFile:     "solution.go",
			TimeLimitSec:   10,
			MemoryLimitMB:  512,
			HelloWorld:     "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"hello\") }",
		},
	}
}
