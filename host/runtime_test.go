package host_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjpearse/lumen/host"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/vm"
)

// run compiles and executes src as a standalone script through the full
// parser/compiler/vm pipeline, exactly as RunFile would for a file on
// disk, but without touching the filesystem.
func run(t *testing.T, src string) (vm.Value, error) {
	t.Helper()
	file := source.FromString("<test>", src)
	span, exe, err := host.Compile(file)
	require.NoError(t, err)

	rt := host.NewRuntime(host.Config{MaxStackDepth: 65536}, nil)
	return rt.Interpreter().Run(span, exe, 0, nil)
}

func TestClosuresShareCaptures(t *testing.T) {
	result, err := run(t, `
		auto make = auto() {
			auto n = 0;
			auto inc = auto() { n = n + 1; return n; };
			inc();
			inc();
			return inc();
		};
		return make();
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(3), result)
}

func TestCaptureSurvivesCallerReturn(t *testing.T) {
	result, err := run(t, `
		auto make = auto() {
			auto n = 10;
			return auto() { return n; };
		};
		auto f = make();
		return f();
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(10), result)
}

func TestStringIndexingAndConcat(t *testing.T) {
	result, err := run(t, `
		auto s = "ab" + "cd";
		if (s != "abcd") {
			return 1;
		}
		if (s[0] != "a" || s[3] != "d") {
			return 1;
		}
		return 0;
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(0), result)
}

func TestSwitchFallthrough(t *testing.T) {
	result, err := run(t, `
		auto x = 1;
		auto total = 0;
		switch (x) {
			case 1: total = total + 1;
			case 2: total = total + 2;
			case 3: total = total + 3; break;
			default: total = total + 100;
		}
		return total;
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(6), result)
}

func TestRequireCircularDependencyIsRejected(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lumen")
	b := filepath.Join(dir, "b.lumen")

	require.NoError(t, os.WriteFile(a, []byte(`
		auto b = require("`+b+`");
		return 1;
	`), 0644))
	require.NoError(t, os.WriteFile(b, []byte(`
		auto a = require("`+a+`");
		return 2;
	`), 0644))

	rt := host.NewRuntime(host.Config{MaxStackDepth: 65536}, nil)
	_, err := rt.RunFile(a, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestRequireCachesModuleResult(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.lumen")
	main := filepath.Join(dir, "main.lumen")

	require.NoError(t, os.WriteFile(lib, []byte(`return 42;`), 0644))
	require.NoError(t, os.WriteFile(main, []byte(`
		auto a = require("`+lib+`");
		auto b = require("`+lib+`");
		return a + b;
	`), 0644))

	rt := host.NewRuntime(host.Config{MaxStackDepth: 65536}, nil)
	result, err := rt.RunFile(main, nil)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(84), result)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 7, host.ExitCode(vm.NewInt(7)))
	assert.Equal(t, 0, host.ExitCode(vm.Void()))
	assert.Equal(t, 1, host.ExitCode(vm.NewString("x")))
}
