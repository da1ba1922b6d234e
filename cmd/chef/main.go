// Command chef is the Chef language toolchain: REPL, script runner,
// project runner and bytecode disassembler.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"chef/internal/bytecode"
	"chef/internal/compiler"
	"chef/internal/manifest"
	"chef/internal/repl"
	"chef/internal/vm"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

// sysexits.h conventions
const (
	exitUsage      = 64
	exitCompileErr = 65
	exitRuntimeErr = 70
	exitNoInput    = 74
)

var traceExecution bool

func main() {
	root := &cobra.Command{
		Use:   "chef [script]",
		Short: "The Chef programming language",
		Long: "Chef is a recipe-themed programming language compiled to bytecode\n" +
			"and executed on a stack-based virtual machine.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				repl.Start(newVM())
				return nil
			}
			os.Exit(runFile(args[0]))
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&traceExecution, "trace", false,
		"log every executed instruction")

	root.AddCommand(
		&cobra.Command{
			Use:   "repl",
			Short: "Start the interactive loop",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				repl.Start(newVM())
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the project described by chef.toml",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				m, err := manifest.Load(".")
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(exitNoInput)
				}
				os.Exit(runFile(m.EntryPath()))
			},
		},
		&cobra.Command{
			Use:   "disasm <script>",
			Short: "Compile a script and print its bytecode",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				os.Exit(disasmFile(args[0]))
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the chef version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("chef %s\n", version)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

func newVM() *vm.VM {
	machine := vm.New()
	if traceExecution {
		commonlog.Configure(2, nil)
		machine.EnableTrace()
	}
	return machine
}

func readSource(path string) (string, int) {
	switch filepath.Ext(path) {
	case ".chef", ".recipe":
	default:
		fmt.Fprintf(os.Stderr, "%s is not a Chef source file (.chef or .recipe)\n", path)
		return "", exitUsage
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not read %s\n", path)
		return "", exitNoInput
	}
	return string(data), 0
}

func runFile(path string) int {
	source, code := readSource(path)
	if code != 0 {
		return code
	}
	fn, err := compiler.Compile(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCompileErr
	}
	if err := newVM().Interpret(fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntimeErr
	}
	return 0
}

func disasmFile(path string) int {
	source, code := readSource(path)
	if code != 0 {
		return code
	}
	fn, err := compiler.Compile(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCompileErr
	}
	bytecode.Disassemble(os.Stdout, fn)
	return 0
}
