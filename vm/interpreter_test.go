package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjpearse/lumen/compiler"
	"github.com/kjpearse/lumen/parser"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/vm"
)

func runScript(t *testing.T, maxStackDepth int, src string) (vm.Value, error) {
	t.Helper()
	file := source.FromString("<test>", src)
	p, err := parser.New(file)
	require.NoError(t, err)
	program, err := p.ParseProgram()
	require.NoError(t, err)
	exe, err := compiler.Compile(program)
	require.NoError(t, err)

	var traced []string
	interp := vm.NewInterpreter(maxStackDepth, nil, func(line string) { traced = append(traced, line) })
	return interp.Run(program.Span(), exe, 0, nil)
}

func TestArithmeticPromotion(t *testing.T) {
	result, err := runScript(t, 1024, `return 3 + 4 * 2;`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(11), result)

	result, err = runScript(t, 1024, `return 3 + 0.5;`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewFloat(3.5), result)
}

func TestFloorDivisionAndModulo(t *testing.T) {
	result, err := runScript(t, 1024, `return -7 / 2;`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(-4), result)

	result, err = runScript(t, 1024, `return -7 % 2;`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(1), result)
}

func TestDivideByZeroIsFatal(t *testing.T) {
	_, err := runScript(t, 1024, `return 1 / 0;`)
	require.Error(t, err)
	var vmErr *vm.Error
	require.ErrorAs(t, err, &vmErr)
	assert.Contains(t, vmErr.Description, "divide by zero")
}

func TestArrayIndexAndSlotMutation(t *testing.T) {
	result, err := runScript(t, 1024, `
		auto a = [1, 2, 3];
		a[1] = 20;
		return a[0] + a[1] + a[2];
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(24), result)
}

func TestIntConversionFromString(t *testing.T) {
	result, err := runScript(t, 1024, `return int("42");`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(42), result)

	result, err = runScript(t, 1024, `return int("0x10");`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(16), result)

	result, err = runScript(t, 1024, `return typeof(int("not a number"));`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewString("void"), result)
}

func TestStructLiteralAndMemberAccess(t *testing.T) {
	result, err := runScript(t, 1024, `
		auto p = struct { .x = 1, .y = 2 };
		p.x = p.x + 10;
		return p.x + p.y;
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(13), result)
}

func TestForeachOverArray(t *testing.T) {
	result, err := runScript(t, 1024, `
		auto a = [1, 2, 3, 4];
		auto total = 0;
		foreach (auto i, v : a) {
			total = total + v;
		}
		return total;
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(10), result)
}

func TestVariadicParametersBundleIntoArray(t *testing.T) {
	result, err := runScript(t, 1024, `
		auto sum = auto(...rest) {
			auto total = 0;
			foreach (auto i, v : rest) {
				total = total + v;
			}
			return total;
		};
		return sum(1, 2, 3, 4);
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(10), result)
}

func TestDefaultArguments(t *testing.T) {
	result, err := runScript(t, 1024, `
		auto greet = auto(n = 10) { return n; };
		return greet();
	`)
	require.NoError(t, err)
	assert.Equal(t, vm.NewInt(10), result)
}

func TestMissingRequiredArgumentIsFatal(t *testing.T) {
	_, err := runScript(t, 1024, `
		auto f = auto(a, b) { return a + b; };
		return f(1);
	`)
	require.Error(t, err)
	var vmErr *vm.Error
	require.ErrorAs(t, err, &vmErr)
	assert.Contains(t, vmErr.Description, "missing argument")
}

func TestRecursionExhaustsStack(t *testing.T) {
	_, err := runScript(t, 64, `
		auto loop = auto(n) { return loop(n + 1); };
		return loop(0);
	`)
	require.Error(t, err)
	var vmErr *vm.Error
	require.ErrorAs(t, err, &vmErr)
	assert.Contains(t, vmErr.Description, "stack overflow")
}

func TestTraceBuiltinForwardsToSink(t *testing.T) {
	var traced []string
	file := source.FromString("<test>", `trace("hello", 1, 2);`)
	p, err := parser.New(file)
	require.NoError(t, err)
	program, err := p.ParseProgram()
	require.NoError(t, err)
	exe, err := compiler.Compile(program)
	require.NoError(t, err)

	interp := vm.NewInterpreter(1024, nil, func(line string) { traced = append(traced, line) })
	_, err = interp.Run(program.Span(), exe, 0, nil)
	require.NoError(t, err)
	require.Len(t, traced, 1)
	assert.Equal(t, "hello 1 2", traced[0])
}

func TestRequireCallbackReceivesStackBase(t *testing.T) {
	var seenBase int
	requireFn := func(interp *vm.Interpreter, span source.Span, stackBase int, args []vm.Value) (vm.Value, error) {
		seenBase = stackBase
		return vm.NewInt(99), nil
	}

	file := source.FromString("<test>", `return require("ignored");`)
	p, err := parser.New(file)
	if err != nil {
		t.Fatal(err)
	}
	program, err := p.ParseProgram()
	if err != nil {
		t.Fatal(err)
	}
	exe, err := compiler.Compile(program)
	if err != nil {
		t.Fatal(err)
	}

	interp := vm.NewInterpreter(1024, requireFn, nil)
	result, err := interp.Run(program.Span(), exe, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != vm.NewInt(99) {
		t.Fatalf("expected 99, got %v", result)
	}
	if seenBase < 0 {
		t.Fatalf("expected a non-negative stack base, got %d", seenBase)
	}
}
