package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Compiler.OptLevel != 0 {
		t.Errorf("Expected OptLevel=0, got %d", cfg.Compiler.OptLevel)
	}
	if cfg.Compiler.OutputAsm != "output.asm" {
		t.Errorf("Expected OutputAsm=output.asm, got %s", cfg.Compiler.OutputAsm)
	}
	if cfg.Compiler.OutputBin != "chronos_program" {
		t.Errorf("Expected OutputBin=chronos_program, got %s", cfg.Compiler.OutputBin)
	}
	if cfg.Tools.Assembler != "nasm" {
		t.Errorf("Expected Assembler=nasm, got %s", cfg.Tools.Assembler)
	}
	if len(cfg.Tools.AssemblerArgs) != 2 || cfg.Tools.AssemblerArgs[0] != "-f" {
		t.Errorf("Expected AssemblerArgs=[-f elf64], got %v", cfg.Tools.AssemblerArgs)
	}
	if cfg.Tools.Linker != "ld" {
		t.Errorf("Expected Linker=ld, got %s", cfg.Tools.Linker)
	}
}

func TestPath(t *testing.T) {
	path := Path()
	if path == "" {
		t.Fatal("Path returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path ending in config.toml, got %s", path)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Compiler.OutputAsm != "output.asm" {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg := Default()
	cfg.Compiler.OptLevel = 2
	cfg.Compiler.OutputBin = "a.out"
	cfg.Tools.LinkerArgs = []string{"-static"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Compiler.OptLevel != 2 {
		t.Errorf("Expected OptLevel=2, got %d", loaded.Compiler.OptLevel)
	}
	if loaded.Compiler.OutputBin != "a.out" {
		t.Errorf("Expected OutputBin=a.out, got %s", loaded.Compiler.OutputBin)
	}
	if len(loaded.Tools.LinkerArgs) != 1 || loaded.Tools.LinkerArgs[0] != "-static" {
		t.Errorf("Expected LinkerArgs=[-static], got %v", loaded.Tools.LinkerArgs)
	}
}

func TestLoadRejectsBadOptLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[compiler]\nopt_level = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for opt_level=9")
	}
}
