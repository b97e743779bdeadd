package compiler

import (
	"fmt"
	"strings"
)

//  Struct layout

// TypeField is one laid-out struct field. Every field occupies a single
// 8-byte machine-word slot regardless of its declared element type; the
// declared type is kept for element-size computation when the field is
// indexed or dereferenced.
type TypeField struct {
	Name      string
	Offset    int
	TypeName  string
	IsPointer bool
}

// StructType is one entry in the TypeTable.
type StructType struct {
	Name   string
	Fields []TypeField
}

// Size is 8 bytes per field, in declaration order.
func (s *StructType) Size() int { return 8 * len(s.Fields) }

// TypeTable resolves struct names to their field layout. Offsets are
// assigned at AddField time and never change afterwards.
type TypeTable struct {
	types []*StructType
}

func NewTypeTable() *TypeTable {
	return &TypeTable{}
}

// AddStruct registers an empty struct and returns it for field insertion.
func (t *TypeTable) AddStruct(name string) *StructType {
	st := &StructType{Name: name}
	t.types = append(t.types, st)
	return st
}

// AddField appends a field at the next 8-byte slot.
func (t *TypeTable) AddField(st *StructType, name, typeName string, isPointer bool) {
	st.Fields = append(st.Fields, TypeField{
		Name:      name,
		Offset:    8 * len(st.Fields),
		TypeName:  typeName,
		IsPointer: isPointer,
	})
}

// Lookup returns the struct definition for name.
func (t *TypeTable) Lookup(name string) (*StructType, bool) {
	for _, st := range t.types {
		if st.Name == name {
			return st, true
		}
	}
	return nil, false
}

// FieldOffset returns the byte offset of field within struct typeName.
func (t *TypeTable) FieldOffset(typeName, field string) (int, bool) {
	st, ok := t.Lookup(typeName)
	if !ok {
		return 0, false
	}
	for _, f := range st.Fields {
		if f.Name == field {
			return f.Offset, true
		}
	}
	return 0, false
}

// Field returns the full field record for typeName.field.
func (t *TypeTable) Field(typeName, field string) (TypeField, bool) {
	st, ok := t.Lookup(typeName)
	if !ok {
		return TypeField{}, false
	}
	for _, f := range st.Fields {
		if f.Name == field {
			return f, true
		}
	}
	return TypeField{}, false
}

// SizeOf returns the byte size of the named type: struct size when the name
// is a registered struct, the primitive size otherwise.
func (t *TypeTable) SizeOf(name string) int {
	if st, ok := t.Lookup(name); ok {
		return st.Size()
	}
	return typeSize(name)
}

// BuildTypeTable resolves every struct definition in the program into a
// fresh table. Layout happens here, before code generation; the AST is
// never mutated.
func BuildTypeTable(prog *Program) *TypeTable {
	types := NewTypeTable()
	for _, decl := range prog.Decls {
		sd, ok := decl.(*StructDecl)
		if !ok {
			continue
		}
		st := types.AddStruct(sd.Name)
		for _, f := range sd.Fields {
			types.AddField(st, f.Name, f.Type.Base, f.Type.IsPointer)
		}
	}
	return types
}

//  Local symbols

// Symbol is one local variable or parameter slot in the current frame.
// Offset is negative (below rbp). For arrays, Count is the declared
// element count and TypeName the element type; for pointers, TypeName is
// the pointee type.
type Symbol struct {
	Name      string
	Offset    int
	Count     int
	TypeName  string
	IsPointer bool
	IsArray   bool
	IsStruct  bool
}

// SymbolTable tracks the locals of the function being generated.
// StackSize is the running absolute displacement below rbp; a slot's
// offset is -StackSize after the table grows for it.
type SymbolTable struct {
	symbols   []Symbol
	StackSize int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

// Add reserves count 8-byte slots and records the symbol at the new
// bottom of the frame.
func (s *SymbolTable) Add(name string, count int, typeName string) Symbol {
	s.StackSize += count * 8
	sym := Symbol{
		Name:     name,
		Offset:   -s.StackSize,
		Count:    count,
		TypeName: typeName,
		IsArray:  count > 1,
	}
	s.symbols = append(s.symbols, sym)
	return sym
}

// AddArray reserves count*elemSize bytes for a typed array and records
// the element type for bounds checks and width-correct element access.
func (s *SymbolTable) AddArray(name, elemType string, count, elemSize int) Symbol {
	s.StackSize += count * elemSize
	sym := Symbol{
		Name:     name,
		Offset:   -s.StackSize,
		Count:    count,
		TypeName: elemType,
		IsArray:  true,
	}
	s.symbols = append(s.symbols, sym)
	return sym
}

// AddStruct reserves size bytes for a struct value.
func (s *SymbolTable) AddStruct(name, typeName string, size int) Symbol {
	s.StackSize += size
	sym := Symbol{
		Name:     name,
		Offset:   -s.StackSize,
		Count:    1,
		TypeName: typeName,
		IsStruct: true,
	}
	s.symbols = append(s.symbols, sym)
	return sym
}

// AddPointer reserves one word for a pointer. pointeeType is the type the
// pointer addresses, used for element scaling when the pointer is indexed.
func (s *SymbolTable) AddPointer(name, pointeeType string) Symbol {
	s.StackSize += 8
	sym := Symbol{
		Name:      name,
		Offset:    -s.StackSize,
		Count:     1,
		TypeName:  pointeeType,
		IsPointer: true,
	}
	s.symbols = append(s.symbols, sym)
	return sym
}

// Lookup returns the symbol for name, newest declaration first.
func (s *SymbolTable) Lookup(name string) (Symbol, bool) {
	for i := len(s.symbols) - 1; i >= 0; i-- {
		if s.symbols[i].Name == name {
			return s.symbols[i], true
		}
	}
	return Symbol{}, false
}

// Last returns the most recently added symbol. Array literals are stored
// through it.
func (s *SymbolTable) Last() (Symbol, bool) {
	if len(s.symbols) == 0 {
		return Symbol{}, false
	}
	return s.symbols[len(s.symbols)-1], true
}

//  Globals

// GlobalVar is one top-level variable. Initialized globals emit into the
// data section, uninitialized ones into bss.
type GlobalVar struct {
	Name          string
	TypeName      string
	IsInitialized bool
	InitValue     int64

	IsArray    bool
	ArrayCount int
	ElemType   string
	ArrayInit  []int64
	StrInit    string // raw string-literal initializer for byte arrays
	HasStrInit bool

	IsPointer bool
	IsMutable bool
}

// GlobalTable holds every global in declaration order.
type GlobalTable struct {
	vars []GlobalVar
}

func NewGlobalTable() *GlobalTable {
	return &GlobalTable{}
}

func (g *GlobalTable) Add(v GlobalVar) {
	g.vars = append(g.vars, v)
}

func (g *GlobalTable) Lookup(name string) (GlobalVar, bool) {
	for _, v := range g.vars {
		if v.Name == name {
			return v, true
		}
	}
	return GlobalVar{}, false
}

// All returns the globals in declaration order for emission.
func (g *GlobalTable) All() []GlobalVar { return g.vars }

//  String pool

// StringEntry is one interned literal: a dense label and the decoded bytes.
type StringEntry struct {
	Label string
	Data  []byte
}

// StringPool interns string literals and hands out stable str_N labels.
// Identical literals share one entry, so the many bounds-error strings
// the code generator interns collapse to a single data-section line.
type StringPool struct {
	entries   []StringEntry
	byContent map[string]int
}

func NewStringPool() *StringPool {
	return &StringPool{byContent: make(map[string]int)}
}

// decodeEscapes resolves the two-byte escape pairs the lexer stored
// verbatim. Unknown escapes resolve to the escaped byte itself.
func decodeEscapes(raw string) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '0':
				out = append(out, 0)
			default:
				out = append(out, raw[i])
			}
			continue
		}
		out = append(out, raw[i])
	}
	return out
}

// Intern returns the label and decoded length for raw, adding a pool
// entry on first sight.
func (p *StringPool) Intern(raw string) (string, int) {
	data := decodeEscapes(raw)
	if idx, ok := p.byContent[string(data)]; ok {
		return p.entries[idx].Label, len(p.entries[idx].Data)
	}
	label := fmt.Sprintf("str_%d", len(p.entries))
	p.entries = append(p.entries, StringEntry{Label: label, Data: data})
	p.byContent[string(data)] = len(p.entries) - 1
	return label, len(data)
}

// LookupData returns the decoded bytes for a label.
func (p *StringPool) LookupData(label string) ([]byte, bool) {
	for _, e := range p.entries {
		if e.Label == label {
			return e.Data, true
		}
	}
	return nil, false
}

// All returns the entries in interning (declaration-index) order.
func (p *StringPool) All() []StringEntry { return p.entries }

// String returns a deterministically ordered dump of the pool, one entry
// per line in interning order.
func (p *StringPool) String() string {
	var sb strings.Builder
	for _, e := range p.entries {
		fmt.Fprintf(&sb, "%s: %q\n", e.Label, e.Data)
	}
	return sb.String()
}
