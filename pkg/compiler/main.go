// Package compiler implements the Chronos language compiler: a single
// pass over the source producing x86-64 assembly in a NASM-compatible
// dialect for Linux (System V AMD64, direct syscalls).
//
// Pipeline: source -> Lex -> Parse -> BuildTypeTable -> Generate -> assembly text
package compiler
