// Package repl implements the interactive line loop. One VM, and so one
// global table, is shared across lines: an ingredient declared on one
// line is visible on the next.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"chef/internal/compiler"
	"chef/internal/vm"
)

func Start(machine *vm.VM) {
	fmt.Println("Chef REPL | type 'exit' to quit")
	input := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("chef > ")
		if !input.Scan() {
			fmt.Println()
			return
		}
		line := input.Text()
		if line == "exit" {
			return
		}
		Interpret(machine, line)
	}
}

// Interpret compiles and runs one line. Errors are reported to the VM's
// diagnostics sink and never end the session.
func Interpret(machine *vm.VM, source string) {
	fn, err := compiler.Compile(source)
	if err != nil {
		fmt.Fprintln(machine.Stderr(), err)
		return
	}
	if err := machine.Interpret(fn); err != nil {
		fmt.Fprintln(machine.Stderr(), err)
	}
}

// Run feeds the loop from an arbitrary reader without prompts; the REPL
// tests drive this directly.
func Run(machine *vm.VM, in io.Reader) {
	input := bufio.NewScanner(in)
	for input.Scan() {
		line := input.Text()
		if line == "exit" {
			return
		}
		Interpret(machine, line)
	}
}
