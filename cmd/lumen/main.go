// Command lumen runs lumen scripts, grounded on the teacher's plaid.go
// CLI (ported from urfave/cli v1 to v2) plus a repl subcommand built on
// github.com/chzyer/readline, in the style of
// _examples/informatter-nilan's cmd_repl.go.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/diagnostic"
	"github.com/kjpearse/lumen/host"
	"github.com/kjpearse/lumen/source"
	"github.com/kjpearse/lumen/vm"
)

func main() {
	app := &cli.App{
		Name:  "lumen",
		Usage: "a small C-like scripting language",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-color", Usage: "disable colored diagnostics"},
		},
		Commands: []*cli.Command{
			runCommand(),
			disasmCommand(),
			replCommand(),
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() == 0 {
				return cli.ShowAppHelp(c)
			}
			return doRun(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "interpret a script and exit with its result as the status",
		ArgsUsage: "<script> [arg]...",
		Action:    doRun,
	}
}

func doRun(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return errors.New("usage: lumen run <script> [arg] ...")
	}

	cfg, err := host.LoadConfig()
	if err != nil {
		return err
	}
	if c.Bool("no-color") {
		cfg.NoColor = true
	}
	diagnostic.SetColor(!cfg.NoColor)

	rt := host.NewRuntime(cfg, func(line string) { fmt.Println(line) })

	args := c.Args().Slice()
	result, err := rt.RunFile(args[0], args[1:])
	if err != nil {
		return renderError(rt, err)
	}

	os.Exit(host.ExitCode(result))
	return nil
}

func disasmCommand() *cli.Command {
	return &cli.Command{
		Name:      "disasm",
		Usage:     "compile a script and dump its bytecode",
		ArgsUsage: "<script>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() == 0 {
				return errors.New("usage: lumen disasm <script>")
			}

			file, err := source.Load(c.Args().First())
			if err != nil {
				return err
			}

			_, exe, err := host.Compile(file)
			if err != nil {
				diagnostic.Print(os.Stderr, diagnostic.Report{Kind: diagnostic.CompileError, Description: err.Error()})
				os.Exit(1)
			}

			bytecode.Disassemble(os.Stdout, exe)
			return nil
		},
	}
}

func replCommand() *cli.Command {
	return &cli.Command{
		Name:  "repl",
		Usage: "start an interactive session",
		Action: func(c *cli.Context) error {
			return runREPL()
		},
	}
}

// runREPL evaluates one line at a time, each as its own throwaway
// script, matching the teacher pack's single-statement-per-line REPL
// idiom (_examples/informatter-nilan's cmd_repl.go) but driven by
// github.com/chzyer/readline for history and line editing.
func runREPL() error {
	rl, err := readline.New("lumen> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	cfg, err := host.LoadConfig()
	if err != nil {
		return err
	}
	rt := host.NewRuntime(cfg, func(line string) { fmt.Println(line) })

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		file := source.FromString("<repl>", line)
		_, exe, err := host.Compile(file)
		if err != nil {
			fmt.Println(err)
			continue
		}

		result, err := rt.Interpreter().Run(source.Span{File: file}, exe, 0, nil)
		if err != nil {
			fmt.Println(renderRuntimeError(rt, err))
			continue
		}
		if result.Kind != vm.KindVoid {
			fmt.Println(result.String())
		}
	}
}

func renderError(rt *host.Runtime, err error) error {
	var vmErr *vm.Error
	if errors.As(err, &vmErr) {
		diagnostic.Print(os.Stderr, diagnostic.Report{
			Kind:        diagnostic.RuntimeError,
			Description: vmErr.Error(),
			StackTrace:  rt.Interpreter().StackTrace(),
		})
		os.Exit(1)
		return nil
	}

	diagnostic.Print(os.Stderr, diagnostic.Report{Kind: diagnostic.CompileError, Description: err.Error()})
	os.Exit(1)
	return nil
}

func renderRuntimeError(rt *host.Runtime, err error) string {
	var vmErr *vm.Error
	if errors.As(err, &vmErr) {
		return diagnostic.Sprint(diagnostic.Report{
			Kind:        diagnostic.RuntimeError,
			Description: vmErr.Error(),
			StackTrace:  rt.Interpreter().StackTrace(),
		})
	}
	return err.Error()
}
