package langs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codemonster/judge/internal/langs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCaseInsensitive(t *testing.T) {
	r := langs.NewRegistry()

	for _, id := range []string{"PYTHON", "python", "Python", " python "} {
		p, err := r.Resolve(id)
		require.NoError(t, err, "id %q", id)
		assert.Equal(t, "PYTHON", p.ID)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := langs.NewRegistry()

	_, err := r.Resolve("BRAINFUCK")
	require.Error(t, err)
	assert.ErrorIs(t, err, langs.ErrUnsupportedLanguage)
	assert.False(t, r.Supported("BRAINFUCK"))
}

func TestListOrdered(t *testing.T) {
	r := langs.NewRegistry()

	list := r.List()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestNeedsCompilation(t *testing.T) {
	r := langs.NewRegistry()

	python, err := r.Resolve("PYTHON")
	require.NoError(t, err)
	assert.False(t, python.NeedsCompilation())

	cpp, err := r.Resolve("CPP")
	require.NoError(t, err)
	assert.True(t, cpp.NeedsCompilation())
}

func TestLoadFileOverride(t *testing.T) {
	body := `
[[languages]]
id = "python"
name = "PyPy"
extension = "py"
image = "judge-pypy:latest"
run_command = "pypy3 /workspace/solution.py"
source_file = "solution.py"
time_limit_sec = 3
memory_limit_mb = 256

[[languages]]
id = "RUST"
name = "Rust"
extension = "rs"
image = "judge-rust:latest"
compile_command = "rustc -O -o /workspace/solution /workspace/solution.rs"
run_command = "/workspace/solution"
source_file = "solution.rs"
time_limit_sec = 10
memory_limit_mb = 512
`
	path := filepath.Join(t.TempDir(), "languages.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	r := langs.NewRegistry()
	require.NoError(t, r.LoadFile(path))

	python, err := r.Resolve("PYTHON")
	require.NoError(t, err)
	assert.Equal(t, "judge-pypy:latest", python.Image)
	assert.Equal(t, 3, python.TimeLimitSec)

	rust, err := r.Resolve("rust")
	require.NoError(t, err)
	assert.True(t, rust.NeedsCompilation())
}

func TestLoadFileIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[languages]]\nid = \"X\"\n"), 0644))

	r := langs.NewRegistry()
	require.Error(t, r.LoadFile(path))
}

func TestNormalizeSourceJava(t *testing.T) {
	r := langs.NewRegistry()
	java, err := r.Resolve("JAVA")
	require.NoError(t, err)

	in := "public class MyFancySolver { public static void main(String[] a) {} }"
	out := langs.NormalizeSource(java, in)
	assert.Contains(t, out, "public class Solution")
	assert.NotContains(t, out, "MyFancySolver")

	python, err := r.Resolve("PYTHON")
	require.NoError(t, err)
	code := "class MyFancySolver:\n    pass\n"
	assert.Equal(t, code, langs.NormalizeSource(python, code))
}
