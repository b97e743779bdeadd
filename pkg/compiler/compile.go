package compiler

// Options configures a single compile. The optimization level lives here
// and is threaded through parsing and code generation; nothing in the
// package is process-global.
type Options struct {
	// OptLevel: 0 = none, 1 = constant folding, 2 = folding plus
	// strength reduction of multiply/divide/modulo by powers of two.
	OptLevel int
}

// Compile runs the whole pipeline over src and returns the NASM-dialect
// assembly text: Lex -> Parse -> BuildTypeTable -> Generate.
func Compile(src string, opts Options) (string, error) {
	tokens, err := Lex(src)
	if err != nil {
		return "", err
	}

	prog, err := Parse(tokens, src, opts.OptLevel)
	if err != nil {
		return "", err
	}

	types := BuildTypeTable(prog)
	return Generate(prog, types, opts.OptLevel)
}
