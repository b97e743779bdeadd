// Command chronos drives the compiler: it reads a source file, writes
// output.asm, then invokes the assembler and linker to produce the final
// executable.
//
// Usage: chronos [-O0|-O1|-O2] [-v] <input_file>
package main

import (
	"fmt"
	"os"
	"os/exec"

	"chronos/pkg/compiler"
	"chronos/pkg/config"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: chronos [-O0|-O1|-O2] [-v] <input_file>")
	os.Exit(1)
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	optLevel := cfg.Compiler.OptLevel
	verbose := false
	inputFile := ""

	for _, arg := range os.Args[1:] {
		switch arg {
		case "-O0":
			optLevel = 0
		case "-O1":
			optLevel = 1
		case "-O2":
			optLevel = 2
		case "-v":
			verbose = true
		default:
			if len(arg) > 0 && arg[0] == '-' {
				usage()
			}
			if inputFile != "" {
				usage()
			}
			inputFile = arg
		}
	}
	if inputFile == "" {
		usage()
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}
	src := string(data)

	if verbose || cfg.Compiler.DumpTokens {
		tokens, err := compiler.Lex(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Println(" ", tok)
		}
		fmt.Println()
	}

	if verbose || cfg.Compiler.DumpAst {
		tokens, err := compiler.Lex(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		prog, err := compiler.Parse(tokens, src, optLevel)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("AST")
		for _, d := range prog.Decls {
			fmt.Println(" ", d)
		}
		fmt.Println()
	}

	asm, err := compiler.Compile(src, compiler.Options{OptLevel: optLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.WriteFile(cfg.Compiler.OutputAsm, []byte(asm), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write error:", err)
		os.Exit(1)
	}

	asmArgs := append(append([]string{}, cfg.Tools.AssemblerArgs...),
		cfg.Compiler.OutputAsm, "-o", cfg.Compiler.OutputObj)
	if err := run(cfg.Tools.Assembler, asmArgs...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ldArgs := append(append([]string{}, cfg.Tools.LinkerArgs...),
		"-o", cfg.Compiler.OutputBin, cfg.Compiler.OutputObj)
	if err := run(cfg.Tools.Linker, ldArgs...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Compiled %s -> %s\n", inputFile, cfg.Compiler.OutputBin)
}
