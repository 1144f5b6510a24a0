// Command rlvmc drives the m6 script engine and the Siglus bytecode
// assembler from the command line, in the flag-subcommand style of
// cmd/asm and cmd/corelx.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"rlvm/internal/m6/compiler"
	"rlvm/internal/m6/parser"
	"rlvm/internal/m6/token"
	"rlvm/internal/m6/vm"
	"rlvm/internal/rllog"
	"rlvm/internal/siglus/assemble"
	"rlvm/internal/siglus/lexer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "m6run":
		err = runM6(args)
	case "assemble":
		err = runAssemble(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "rlvmc %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: rlvmc <command> [args]")
	fmt.Fprintln(os.Stderr, "  m6run <script.m6>       tokenize, parse, compile, and run a script")
	fmt.Fprintln(os.Stderr, "  assemble <bytecode.bin> disassemble and assemble Siglus lexemes")
}

func runM6(args []string) error {
	fs := flag.NewFlagSet("m6run", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rlvmc m6run <script.m6>")
	}
	path := fs.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	toks := token.Tokenize(string(src))
	prog, perrs := parser.Parse(toks)
	if perrs != nil && perrs.HasErrors() {
		return fmt.Errorf("parse errors: %s", perrs.Error())
	}
	compiled, cerrs := compiler.Compile(prog, nil)
	if cerrs != nil && cerrs.HasErrors() {
		return fmt.Errorf("compile errors: %s", cerrs.Error())
	}
	m := vm.New(compiled, nil)
	result, err := m.Run()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Printf("%s -> %v\n", filepath.Base(path), result)
	return nil
}

func runAssemble(args []string) error {
	fs := flag.NewFlagSet("assemble", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rlvmc assemble <bytecode.bin>")
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	lexemes, err := lexer.Tokenize(data)
	if err != nil {
		return fmt.Errorf("lexing: %w", err)
	}
	log := rllog.New(1000)
	res, err := assemble.Assemble(lexemes, nil, log)
	if err != nil {
		return fmt.Errorf("assembling: %w", err)
	}
	fmt.Printf("%s -> %d instructions\n", filepath.Base(path), len(res.Instructions))
	return nil
}
