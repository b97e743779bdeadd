// Package config holds the chronos tool configuration, loaded from a
// TOML file and overridable by command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the compiler driver configuration.
type Config struct {
	// Compiler settings
	Compiler struct {
		OptLevel   int    `toml:"opt_level"`   // default -O level (0..2)
		OutputAsm  string `toml:"output_asm"`  // assembly file written next to the working directory
		OutputObj  string `toml:"output_obj"`  // object file produced by the assembler
		OutputBin  string `toml:"output_bin"`  // final linked executable
		DumpTokens bool   `toml:"dump_tokens"` // verbose: print the token stream
		DumpAst    bool   `toml:"dump_ast"`    // verbose: print the AST
	} `toml:"compiler"`

	// External tool settings
	Tools struct {
		Assembler     string   `toml:"assembler"`
		AssemblerArgs []string `toml:"assembler_args"`
		Linker        string   `toml:"linker"`
		LinkerArgs    []string `toml:"linker_args"`
	} `toml:"tools"`
}

// Default returns a configuration with default values.
func Default() *Config {
	cfg := &Config{}

	cfg.Compiler.OptLevel = 0
	cfg.Compiler.OutputAsm = "output.asm"
	cfg.Compiler.OutputObj = "output.o"
	cfg.Compiler.OutputBin = "chronos_program"
	cfg.Compiler.DumpTokens = false
	cfg.Compiler.DumpAst = false

	cfg.Tools.Assembler = "nasm"
	cfg.Tools.AssemblerArgs = []string{"-f", "elf64"}
	cfg.Tools.Linker = "ld"
	cfg.Tools.LinkerArgs = nil

	return cfg
}

// Path returns the per-user config file location,
// ~/.config/chronos/config.toml on Linux.
func Path() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(homeDir, ".config", "chronos", "config.toml")
}

// Load reads the configuration from path, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if cfg.Compiler.OptLevel < 0 || cfg.Compiler.OptLevel > 2 {
		return nil, fmt.Errorf("loading config %s: opt_level must be 0, 1, or 2", path)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving config %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving config %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
