package compiler

import (
	"testing"
)

func TestSymbolTable(t *testing.T) {
	t.Run("ScalarOffsets", func(t *testing.T) {
		s := NewSymbolTable()
		a := s.Add("a", 1, "i64")
		b := s.Add("b", 1, "i64")

		if a.Offset != -8 {
			t.Errorf("a offset: expected -8, got %d", a.Offset)
		}
		if b.Offset != -16 {
			t.Errorf("b offset: expected -16, got %d", b.Offset)
		}
		if s.StackSize != 16 {
			t.Errorf("stack size: expected 16, got %d", s.StackSize)
		}
	})

	t.Run("WordArray", func(t *testing.T) {
		s := NewSymbolTable()
		arr := s.Add("arr", 3, "i64")
		if arr.Offset != -24 {
			t.Errorf("arr offset: expected -24, got %d", arr.Offset)
		}
		if !arr.IsArray || arr.Count != 3 {
			t.Errorf("arr: expected array of 3, got %+v", arr)
		}
	})

	t.Run("TypedArrayReservesCountTimesElemSize", func(t *testing.T) {
		s := NewSymbolTable()
		arr := s.AddArray("a", "i32", 3, 4)
		if s.StackSize != 12 {
			t.Errorf("stack size: expected 12, got %d", s.StackSize)
		}
		if arr.Offset != -12 {
			t.Errorf("a offset: expected -12, got %d", arr.Offset)
		}
		if arr.TypeName != "i32" || arr.Count != 3 {
			t.Errorf("a: expected i32 x3, got %+v", arr)
		}
	})

	t.Run("PointerAndStruct", func(t *testing.T) {
		s := NewSymbolTable()
		p := s.AddPointer("p", "i64")
		st := s.AddStruct("pt", "Point", 16)

		if p.Offset != -8 || !p.IsPointer {
			t.Errorf("p: expected pointer at -8, got %+v", p)
		}
		if st.Offset != -24 || !st.IsStruct {
			t.Errorf("pt: expected struct at -24, got %+v", st)
		}
		if s.StackSize != 24 {
			t.Errorf("stack size: expected 24, got %d", s.StackSize)
		}
	})

	t.Run("SlotsDoNotOverlap", func(t *testing.T) {
		s := NewSymbolTable()
		syms := []Symbol{
			s.Add("a", 1, "i64"),
			s.AddArray("b", "i32", 4, 4),
			s.AddPointer("c", "u8"),
			s.AddStruct("d", "P", 16),
		}
		sizes := []int{8, 16, 8, 16}
		for i, sym := range syms {
			if sym.Offset >= 0 {
				t.Errorf("%s: offset %d not negative", sym.Name, sym.Offset)
			}
			// slot i occupies [Offset, Offset+size); the next slot must
			// sit strictly below it
			if i+1 < len(syms) {
				next := syms[i+1]
				if next.Offset+sizes[i+1] > sym.Offset {
					t.Errorf("%s overlaps %s", next.Name, sym.Name)
				}
			}
		}
	})

	t.Run("LookupNewestFirst", func(t *testing.T) {
		s := NewSymbolTable()
		s.Add("x", 1, "i64")
		second := s.Add("x", 1, "i32")
		got, ok := s.Lookup("x")
		if !ok || got.Offset != second.Offset {
			t.Errorf("lookup: expected newest x at %d, got %+v", second.Offset, got)
		}
	})
}

func TestTypeTable(t *testing.T) {
	t.Run("FieldOffsetsAre8TimesIndex", func(t *testing.T) {
		types := NewTypeTable()
		st := types.AddStruct("Token")
		types.AddField(st, "kind", "i64", false)
		types.AddField(st, "text", "u8", true)
		types.AddField(st, "line", "i32", false)

		for i, name := range []string{"kind", "text", "line"} {
			off, ok := types.FieldOffset("Token", name)
			if !ok {
				t.Fatalf("field %s not found", name)
			}
			if off != 8*i {
				t.Errorf("%s offset: expected %d, got %d", name, 8*i, off)
			}
		}
		if st.Size() != 24 {
			t.Errorf("size: expected 24, got %d", st.Size())
		}
	})

	t.Run("SizeOf", func(t *testing.T) {
		types := NewTypeTable()
		st := types.AddStruct("Pair")
		types.AddField(st, "a", "i64", false)
		types.AddField(st, "b", "i64", false)

		cases := map[string]int{
			"i8": 1, "u8": 1, "i16": 2, "u16": 2,
			"i32": 4, "u32": 4, "i64": 8, "u64": 8,
			"Pair": 16, "Unknown": 8,
		}
		for name, want := range cases {
			if got := types.SizeOf(name); got != want {
				t.Errorf("SizeOf(%s): expected %d, got %d", name, want, got)
			}
		}
	})

	t.Run("BuildFromProgram", func(t *testing.T) {
		src := "struct P { x: i64, y: i64 } fn main() -> i32 { return 0; }"
		tokens, err := Lex(src)
		if err != nil {
			t.Fatal(err)
		}
		prog, err := Parse(tokens, src, OptNone)
		if err != nil {
			t.Fatal(err)
		}
		types := BuildTypeTable(prog)
		off, ok := types.FieldOffset("P", "y")
		if !ok || off != 8 {
			t.Errorf("P.y offset: expected 8, got %d (found=%v)", off, ok)
		}
	})
}

func TestStringPool(t *testing.T) {
	t.Run("DenseLabelsAndDedup", func(t *testing.T) {
		pool := NewStringPool()
		l0, n0 := pool.Intern("abc")
		l1, _ := pool.Intern("def")
		l2, _ := pool.Intern("abc") // duplicate shares the entry

		if l0 != "str_0" || l1 != "str_1" {
			t.Errorf("labels: expected str_0/str_1, got %s/%s", l0, l1)
		}
		if l2 != l0 {
			t.Errorf("duplicate: expected %s, got %s", l0, l2)
		}
		if n0 != 3 {
			t.Errorf("length: expected 3, got %d", n0)
		}
		if len(pool.All()) != 2 {
			t.Errorf("entries: expected 2, got %d", len(pool.All()))
		}
	})

	t.Run("EscapeDecoding", func(t *testing.T) {
		pool := NewStringPool()
		_, n := pool.Intern(`hi\n`)
		if n != 3 {
			t.Errorf("length of hi\\n: expected 3, got %d", n)
		}
		data, ok := pool.LookupData("str_0")
		if !ok || string(data) != "hi\n" {
			t.Errorf("data: expected \"hi\\n\", got %q", data)
		}

		_, n = pool.Intern(`a\tb\0c\\d\"e`)
		if n != 9 {
			t.Errorf("escape run length: expected 9, got %d", n)
		}
	})
}
