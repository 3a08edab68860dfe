// The runac command is the Runa compiler driver (§6.3): it owns all
// I/O (reading source, writing diagnostics, shelling out to the
// system assembler and linker) and wires the core packages — lexer,
// parser, types, flow, escape, irgen — in the fixed order §5 requires.
// None of that wiring belongs in the core itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"golang.org/x/xerrors"
)

var (
	lastFlag      = flag.String("last", "escape", "name of the last pass whose output `show` prints")
	testFlag      = flag.Bool("test", false, "suppress stdout (used by the test harness)")
	tracebackFlag = flag.Bool("traceback", false, "re-raise internal diagnostics instead of pretty-printing them")
)

// command is one subcommand: a one-line doc string and the function
// that runs it against a single source file path.
type command struct {
	doc string
	run func(fn string, opts options) error
}

type options struct {
	last      string
	test      bool
	traceback bool
}

var commands = map[string]command{
	"tokens":   {"Print a list of tokens and location info", cmdTokens},
	"parse":    {"Print the syntax tree resulting from parsing the source", cmdParse},
	"show":     {"Print the CFG after the pass named by --last", cmdShow},
	"generate": {"Print LLVM IR as generated by the code generation process", cmdGenerate},
	"compile":  {"Compile the given program to a binary of the same name", cmdCompile},
	"doc":      {"Render each declaration's leading comment block to HTML", cmdDoc},
}

// find resolves cmd by exact match, or by unique prefix as §6.3
// requires ("resolved by unique prefix").
func find(cmd string) (string, command, error) {
	if c, ok := commands[cmd]; ok {
		return cmd, c, nil
	}
	var matched []string
	for name := range commands {
		if len(cmd) > 0 && len(name) >= len(cmd) && name[:len(cmd)] == cmd {
			matched = append(matched, name)
		}
	}
	sort.Strings(matched)
	switch len(matched) {
	case 0:
		return "", command{}, fmt.Errorf("no command found: %q", cmd)
	case 1:
		return matched[0], commands[matched[0]], nil
	default:
		return "", command{}, fmt.Errorf("ambiguous command %q: matches %v", cmd, matched)
	}
}

func usage() {
	fmt.Println("The Runa compiler. A command takes a single file as an argument.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println()
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-10s %s\n", name, commands[name].doc)
	}
	fmt.Println()
	fmt.Println("Any unique command abbreviation will also work.")
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	_, cmd, err := find(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := options{last: *lastFlag, test: *testFlag, traceback: *tracebackFlag}
	if err := cmd.run(args[1], opts); err != nil {
		if opts.traceback {
			panic(xerrors.Errorf("runac: %w", err))
		}
		report(err)
		os.Exit(1)
	}
}
