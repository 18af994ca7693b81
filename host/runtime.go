package host

import (
	"path/filepath"

	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/compiler"
	"github.com/kjpearse/lumen/parser"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/vm"
)

// moduleState tags a cache entry's lifecycle, grounded on oyc.py's
// "_MODULE_VALUE_PLACEHOLDER" sentinel: a module being compiled and run
// for the first time is "loading" until its top-level closure returns,
// so a require() cycle back into it is caught instead of recursing
// forever.
type moduleState int

const (
	moduleLoading moduleState = iota
	moduleReady
)

type moduleEntry struct {
	state moduleState
	value vm.Value
}

// Runtime is one instance of the embeddable interpreter: a module cache
// keyed by absolute file path, and the trace sink scripts' trace() calls
// are forwarded to. Grounded on original_source/oyc.py's OYC class.
type Runtime struct {
	Config  Config
	modules map[string]*moduleEntry
	interp  *vm.Interpreter
	TraceFn func(string)
}

func NewRuntime(cfg Config, traceFn func(string)) *Runtime {
	r := &Runtime{Config: cfg, modules: make(map[string]*moduleEntry), TraceFn: traceFn}
	r.interp = vm.NewInterpreter(cfg.MaxStackDepth, r.builtinRequire, traceFn)
	return r
}

// Interpreter exposes the underlying interpreter, e.g. for StackTrace()
// after RunFile returns an error.
func (r *Runtime) Interpreter() *vm.Interpreter { return r.interp }

// Compile parses and generates bytecode for a single source file,
// grounded on oyc.py's _compile_script.
func Compile(file *source.File) (source.Span, *bytecode.Executable, error) {
	p, err := parser.New(file)
	if err != nil {
		return source.Span{}, nil, err
	}
	program, err := p.ParseProgram()
	if err != nil {
		return source.Span{}, nil, err
	}
	exe, err := compiler.Compile(program)
	if err != nil {
		return source.Span{}, nil, err
	}
	return program.Span(), exe, nil
}

// RunFile loads, compiles and runs a script as the entry module, with
// args forwarded as its "arguments" rest parameter (each wrapped as a
// STRING value).
func (r *Runtime) RunFile(path string, args []string) (vm.Value, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return vm.Value{}, err
	}

	file, err := source.Load(abs)
	if err != nil {
		return vm.Value{}, err
	}

	r.modules[abs] = &moduleEntry{state: moduleLoading}

	span, exe, err := Compile(file)
	if err != nil {
		return vm.Value{}, err
	}

	values := make([]vm.Value, len(args))
	for i, a := range args {
		values[i] = vm.NewString(a)
	}

	result, err := r.interp.Run(span, exe, 0, values)
	if err != nil {
		return vm.Value{}, err
	}

	r.modules[abs] = &moduleEntry{state: moduleReady, value: result}
	return result, nil
}

// ExitCode derives a process exit code from a module's result value,
// grounded on oyc.py's __main__: an INTEGER result passes through
// verbatim, VOID (an implicit "fell off the end" script) exits 0, and
// any other value exits 1.
func ExitCode(v vm.Value) int {
	switch v.Kind {
	case vm.KindInt:
		return int(v.IntVal)
	case vm.KindVoid:
		return 0
	default:
		return 1
	}
}

// builtinRequire implements require()'s module-cache and circular-
// dependency semantics, grounded on oyc.py's _builtin_require_impl: the
// first argument is a script path, the rest are forwarded as the
// required module's own "arguments". Per Open Question 4 (see
// DESIGN.md), the required module's top-level frame reuses the caller's
// stack base rather than starting a fresh one.
func (r *Runtime) builtinRequire(interp *vm.Interpreter, span source.Span, stackBase int, args []vm.Value) (vm.Value, error) {
	if len(args) == 0 {
		return vm.Value{}, vm.MissingArgument(span)
	}
	if args[0].Kind != vm.KindString {
		return vm.Value{}, &vm.Error{Span: span, Description: "require() failed: file path must be a string"}
	}

	abs, err := filepath.Abs(args[0].StrVal)
	if err != nil {
		return vm.Value{}, err
	}

	if entry, ok := r.modules[abs]; ok {
		if entry.state == moduleLoading {
			return vm.Value{}, &vm.Error{Span: span, Description: "require() failed: circular dependency"}
		}
		return entry.value, nil
	}

	r.modules[abs] = &moduleEntry{state: moduleLoading}

	file, err := source.Load(abs)
	if err != nil {
		return vm.Value{}, err
	}

	_, exe, err := Compile(file)
	if err != nil {
		return vm.Value{}, err
	}

	// Reuse the CALL instruction's own stack_base for the required
	// module's top-level frame, exactly as oyc.py's
	// _builtin_require_impl forwards its stack_base argument straight
	// through to the nested interpreter.run.
	result, err := interp.Run(span, exe, stackBase, args[1:])
	if err != nil {
		return vm.Value{}, err
	}

	r.modules[abs] = &moduleEntry{state: moduleReady, value: result}
	return result, nil
}
