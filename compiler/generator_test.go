package compiler_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjpearse/lumen/compiler"
	"github.com/kjpearse/lumen/parser"
	"github.com/kjpearse/lumen/source"
)

func compileSource(t *testing.T, src string) error {
	t.Helper()
	file := source.FromString("<test>", src)
	p, err := parser.New(file)
	require.NoError(t, err)
	program, err := p.ParseProgram()
	require.NoError(t, err)
	_, err = compiler.Compile(program)
	return err
}

func TestCompileSimpleReturn(t *testing.T) {
	err := compileSource(t, `return 1 + 2;`)
	assert.NoError(t, err)
}

func TestStackTooDeepAtRegisterLimit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < compiler.MaxRegisters+1; i++ {
		fmt.Fprintf(&b, "auto v%d = %d;\n", i, i)
	}
	b.WriteString("return 0;\n")

	err := compileSource(t, b.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack too deep")
}

func TestDuplicateLocalNameIsRejected(t *testing.T) {
	err := compileSource(t, `
		auto x = 1;
		auto x = 2;
		return x;
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exists")
}
