package compiler

import (
	"fmt"
	"strings"
)

// abiRegs is the System V AMD64 integer argument register sequence.
var abiRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// scratchBytes is the extra frame space reserved past the locals for the
// println newline slot and other transient byte buffers.
const scratchBytes = 1024

// CodeGen walks an AST and emits NASM-dialect x86-64 assembly text.
//
// Evaluation model: rax carries the current expression value, rbx is the
// scratch right operand during binary operations. Intermediate values
// spill to the machine stack with push/pop around subexpression
// evaluation. A string literal additionally leaves its length in rbx as
// a side channel for print/println.
type CodeGen struct {
	types   *TypeTable
	globals *GlobalTable
	strings *StringPool
	syms    *SymbolTable // locals of the function being generated
	opt     int

	labelCount int
	text       strings.Builder  // completed function bodies
	buf        *strings.Builder // current emission target
}

func newCodeGen(opt int) *CodeGen {
	return &CodeGen{
		globals: NewGlobalTable(),
		strings: NewStringPool(),
		opt:     opt,
	}
}

func (cg *CodeGen) newLabel() int {
	n := cg.labelCount
	cg.labelCount++
	return n
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(cg.buf, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("    ; "+format, args...)
}

// mem renders an rbp-relative operand like [rbp-24].
func mem(off int) string {
	return fmt.Sprintf("[rbp%+d]", off)
}

// loadElem loads the value at the address in rax with the width of
// elemSize, zero-extending narrow loads.
func (cg *CodeGen) loadElem(elemSize int) {
	cg.line("    mov rbx, rax")
	switch elemSize {
	case 1:
		cg.line("    movzx rax, byte [rbx]")
	case 2:
		cg.line("    movzx rax, word [rbx]")
	case 4:
		cg.line("    mov eax, dword [rbx]")
	default:
		cg.line("    mov rax, qword [rbx]")
	}
}

// storeElem stores rax (by width) to the address in rbx.
func (cg *CodeGen) storeElem(elemSize int) {
	switch elemSize {
	case 1:
		cg.line("    mov byte [rbx], al")
	case 2:
		cg.line("    mov word [rbx], ax")
	case 4:
		cg.line("    mov dword [rbx], eax")
	default:
		cg.line("    mov qword [rbx], rax")
	}
}

// storeElemAt stores rax (by width) to a direct memory operand.
func (cg *CodeGen) storeElemAt(addr string, elemSize int) {
	switch elemSize {
	case 1:
		cg.line("    mov byte %s, al", addr)
	case 2:
		cg.line("    mov word %s, ax", addr)
	case 4:
		cg.line("    mov dword %s, eax", addr)
	default:
		cg.line("    mov qword %s, rax", addr)
	}
}

// emitBoundsCheck guards the index in rax against [0, count). The failure
// path writes "Array bounds error\n" to fd 2 and exits with status 1. All
// checks share one interned pool entry for the message.
func (cg *CodeGen) emitBoundsCheck(count int) {
	label, msgLen := cg.strings.Intern(`Array bounds error\n`)
	n := cg.newLabel()
	cg.line("    cmp rax, 0")
	cg.line("    jl .Lbounds_error_%d", n)
	cg.line("    cmp rax, %d", count)
	cg.line("    jge .Lbounds_error_%d", n)
	cg.line("    jmp .Lbounds_ok_%d", n)
	cg.line(".Lbounds_error_%d:", n)
	cg.line("    mov rax, 1")
	cg.line("    mov rdi, 2")
	cg.line("    mov rsi, %s", label)
	cg.line("    mov rdx, %d", msgLen)
	cg.line("    syscall")
	cg.line("    mov rax, 60")
	cg.line("    mov rdi, 1")
	cg.line("    syscall")
	cg.line(".Lbounds_ok_%d:", n)
}

// structSize returns the size of name when it is a registered struct.
func (cg *CodeGen) structSize(name string) (int, bool) {
	st, ok := cg.types.Lookup(name)
	if !ok {
		return 0, false
	}
	return st.Size(), true
}

// resolveStructType determines the struct type name of the value produced
// by e, for field-offset lookups. Supported shapes follow the language:
// a struct variable, a pointer-to-struct variable, a dereferenced pointer
// variable, an indexed array/pointer of structs, and one level of
// field-of-struct pointer indexing (container.field[i]). Anything deeper
// is a compile-time diagnostic rather than a silent zero.
func (cg *CodeGen) resolveStructType(e Expr) (string, error) {
	switch n := e.(type) {
	case *VarRef:
		if sym, ok := cg.syms.Lookup(n.Name); ok {
			return sym.TypeName, nil
		}
		if g, ok := cg.globals.Lookup(n.Name); ok {
			if g.IsArray {
				return g.ElemType, nil
			}
			return g.TypeName, nil
		}
		return "", fmt.Errorf("unknown variable %q in field access", n.Name)

	case *DerefExpr:
		return cg.resolveStructType(n.Right)

	case *IndexExpr:
		switch base := n.Left.(type) {
		case *VarRef:
			return cg.resolveStructType(base)
		case *MemberExpr:
			objType, err := cg.resolveStructType(base.Left)
			if err != nil {
				return "", err
			}
			field, ok := cg.types.Field(objType, base.Member)
			if !ok {
				return "", fmt.Errorf("struct %s has no field %q", objType, base.Member)
			}
			if !field.IsPointer {
				return "", fmt.Errorf("field %s.%s is not a typed pointer; cannot index it", objType, base.Member)
			}
			return field.TypeName, nil
		default:
			return "", fmt.Errorf("field access through nested expression is not supported; introduce a temporary")
		}

	case *MemberExpr:
		objType, err := cg.resolveStructType(n.Left)
		if err != nil {
			return "", err
		}
		field, ok := cg.types.Field(objType, n.Member)
		if !ok {
			return "", fmt.Errorf("struct %s has no field %q", objType, n.Member)
		}
		return field.TypeName, nil
	}
	return "", fmt.Errorf("field access through nested expression is not supported; introduce a temporary")
}

// genIndexAddr leaves the address of base[index] in rax and returns the
// element size and type name. Local arrays and string literals are
// bounds-checked; pointers are not.
func (cg *CodeGen) genIndexAddr(n *IndexExpr) (int, string, error) {
	switch base := n.Left.(type) {
	case *StringLiteral:
		label, length := cg.strings.Intern(base.Raw)
		if err := cg.genExpr(n.Index); err != nil {
			return 0, "", err
		}
		cg.emitBoundsCheck(length)
		cg.line("    mov rbx, %s", label)
		cg.line("    add rax, rbx")
		return 1, "u8", nil

	case *VarRef:
		if sym, ok := cg.syms.Lookup(base.Name); ok {
			elemType := sym.TypeName
			if elemType == "" {
				elemType = "i64"
			}
			elemSize := cg.types.SizeOf(elemType)

			if err := cg.genExpr(n.Index); err != nil {
				return 0, "", err
			}
			if sym.IsArray && !sym.IsPointer {
				cg.emitBoundsCheck(sym.Count)
			}
			if elemSize != 1 {
				cg.line("    imul rax, rax, %d", elemSize)
			}
			if sym.IsPointer {
				cg.line("    mov rbx, %s", mem(sym.Offset))
			} else {
				cg.line("    lea rbx, %s", mem(sym.Offset))
			}
			cg.line("    add rax, rbx")
			return elemSize, elemType, nil
		}
		if g, ok := cg.globals.Lookup(base.Name); ok {
			elemType := g.ElemType
			if elemType == "" {
				elemType = g.TypeName
			}
			elemSize := cg.types.SizeOf(elemType)
			if err := cg.genExpr(n.Index); err != nil {
				return 0, "", err
			}
			if elemSize != 1 {
				cg.line("    imul rax, rax, %d", elemSize)
			}
			if g.IsPointer {
				cg.line("    mov rbx, [%s]", g.Name)
			} else {
				cg.line("    mov rbx, %s", g.Name)
			}
			cg.line("    add rax, rbx")
			return elemSize, elemType, nil
		}
		cg.line("    mov rax, 0 ; unknown variable '%s'", base.Name)
		return 8, "i64", nil

	case *MemberExpr:
		// obj.field[i]: the field must be a typed pointer; its value is
		// the base address and its pointee type gives the element size.
		objType, err := cg.resolveStructType(base.Left)
		if err != nil {
			return 0, "", err
		}
		field, ok := cg.types.Field(objType, base.Member)
		if !ok {
			cg.line("    mov rax, 0 ; unknown field '%s.%s'", objType, base.Member)
			return 8, "i64", nil
		}
		if !field.IsPointer {
			return 0, "", fmt.Errorf("field %s.%s is not a typed pointer; cannot index it", objType, base.Member)
		}
		if err := cg.genExpr(base); err != nil {
			return 0, "", err
		}
		cg.line("    push rax")
		if err := cg.genExpr(n.Index); err != nil {
			return 0, "", err
		}
		elemSize := cg.types.SizeOf(field.TypeName)
		if elemSize != 1 {
			cg.line("    imul rax, rax, %d", elemSize)
		}
		cg.line("    pop rbx")
		cg.line("    add rax, rbx")
		return elemSize, field.TypeName, nil

	default:
		return 0, "", fmt.Errorf("unsupported index base expression %T", n.Left)
	}
}

// genExpr emits the instructions that evaluate e and leave the result in rax.
func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {

	case *Literal:
		cg.line("    mov rax, %d", n.Value)

	case *StringLiteral:
		label, length := cg.strings.Intern(n.Raw)
		cg.line("    mov rax, %s", label)
		cg.line("    mov rbx, %d", length)

	case *VarRef:
		if sym, ok := cg.syms.Lookup(n.Name); ok {
			if sym.IsArray && !sym.IsPointer {
				// arrays decay to their base address
				cg.line("    lea rax, %s", mem(sym.Offset))
			} else {
				cg.line("    mov rax, %s", mem(sym.Offset))
			}
			return nil
		}
		if g, ok := cg.globals.Lookup(n.Name); ok {
			if g.IsArray {
				cg.line("    lea rax, [%s]", g.Name)
			} else {
				cg.line("    mov rax, [%s]", g.Name)
			}
			return nil
		}
		cg.line("    mov rax, 0 ; unknown variable '%s'", n.Name)

	case *AddrOfExpr:
		switch target := n.Right.(type) {
		case *VarRef:
			if sym, ok := cg.syms.Lookup(target.Name); ok {
				if sym.IsPointer {
					// a pointer's value already is its target's address
					cg.line("    mov rax, %s", mem(sym.Offset))
				} else {
					cg.line("    lea rax, %s", mem(sym.Offset))
				}
				return nil
			}
			if g, ok := cg.globals.Lookup(target.Name); ok {
				if g.IsPointer {
					cg.line("    mov rax, [%s]", g.Name)
				} else {
					cg.line("    mov rax, %s", g.Name)
				}
				return nil
			}
			cg.line("    mov rax, 0 ; unknown variable '%s'", target.Name)
			return nil
		case *IndexExpr:
			_, _, err := cg.genIndexAddr(target)
			return err
		default:
			return fmt.Errorf("cannot take the address of expression %T", n.Right)
		}

	case *DerefExpr:
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.line("    mov rax, [rax]")

	case *UnaryExpr:
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		switch n.Op {
		case MINUS:
			cg.line("    neg rax")
		case NOT:
			cg.line("    test rax, rax")
			cg.line("    setz al")
			cg.line("    movzx rax, al")
		default:
			return fmt.Errorf("codegen: unknown unary operator %s", n.Op)
		}

	case *BinaryExpr:
		// Strength reduction: multiply/divide/modulo by a positive
		// power of two becomes a shift or mask.
		if cg.opt >= OptStrength {
			if lit, ok := n.Right.(*Literal); ok {
				if k, pow := powerOfTwo(lit.Value); pow {
					switch n.Op {
					case STAR:
						if err := cg.genExpr(n.Left); err != nil {
							return err
						}
						cg.line("    shl rax, %d", k)
						return nil
					case SLASH:
						if err := cg.genExpr(n.Left); err != nil {
							return err
						}
						cg.line("    sar rax, %d", k)
						return nil
					case PERCENT:
						if err := cg.genExpr(n.Left); err != nil {
							return err
						}
						cg.line("    and rax, %d", lit.Value-1)
						return nil
					}
				}
			}
		}

		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		cg.line("    push rax")
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.line("    mov rbx, rax")
		cg.line("    pop rax")

		switch n.Op {
		case PLUS:
			cg.line("    add rax, rbx")
		case MINUS:
			cg.line("    sub rax, rbx")
		case STAR:
			cg.line("    imul rax, rbx")
		case SLASH, PERCENT:
			// divisor zero yields 0, silently; part of the observable
			// contract
			l := cg.newLabel()
			cg.line("    test rbx, rbx")
			cg.line("    jnz .Ldiv_ok_%d", l)
			cg.comment("zero divisor: result is 0")
			cg.line("    xor rax, rax")
			cg.line("    jmp .Ldiv_end_%d", l)
			cg.line(".Ldiv_ok_%d:", l)
			cg.line("    cqo")
			cg.line("    idiv rbx")
			if n.Op == PERCENT {
				cg.line("    mov rax, rdx")
			}
			cg.line(".Ldiv_end_%d:", l)
		default:
			return fmt.Errorf("codegen: unknown binary operator %s", n.Op)
		}

	case *CompareExpr:
		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		cg.line("    push rax")
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.line("    mov rbx, rax")
		cg.line("    pop rax")
		cg.line("    cmp rax, rbx")
		cc := map[TokenType]string{
			EQUALS: "e", NOT_EQ: "ne", LESS: "l",
			GREATER: "g", LESS_EQ: "le", GREATER_EQ: "ge",
		}[n.Op]
		if cc == "" {
			return fmt.Errorf("codegen: unknown comparison operator %s", n.Op)
		}
		cg.line("    set%s al", cc)
		cg.line("    movzx rax, al")

	case *LogicalExpr:
		l := cg.newLabel()
		if n.Op == AND_LOGICAL {
			if err := cg.genExpr(n.Left); err != nil {
				return err
			}
			cg.line("    test rax, rax")
			cg.line("    jz .Lfalse_%d", l)
			if err := cg.genExpr(n.Right); err != nil {
				return err
			}
			cg.line("    test rax, rax")
			cg.line("    jz .Lfalse_%d", l)
			cg.line("    mov rax, 1")
			cg.line("    jmp .Lend_%d", l)
			cg.line(".Lfalse_%d:", l)
			cg.line("    xor rax, rax")
			cg.line(".Lend_%d:", l)
			return nil
		}
		if n.Op == OR_LOGICAL {
			if err := cg.genExpr(n.Left); err != nil {
				return err
			}
			cg.line("    test rax, rax")
			cg.line("    jnz .Ltrue_%d", l)
			if err := cg.genExpr(n.Right); err != nil {
				return err
			}
			cg.line("    test rax, rax")
			cg.line("    jnz .Ltrue_%d", l)
			cg.line("    xor rax, rax")
			cg.line("    jmp .Lend_%d", l)
			cg.line(".Ltrue_%d:", l)
			cg.line("    mov rax, 1")
			cg.line(".Lend_%d:", l)
			return nil
		}
		return fmt.Errorf("codegen: unknown logical operator %s", n.Op)

	case *FunctionCall:
		return cg.genCall(n)

	case *InitializerList:
		// Array literals are stored through the most recently added
		// local symbol, one element per slot of its element size.
		sym, ok := cg.syms.Last()
		if !ok {
			return fmt.Errorf("array literal outside of a declaration")
		}
		elemType := sym.TypeName
		if elemType == "" {
			elemType = "i64"
		}
		elemSize := cg.types.SizeOf(elemType)
		for i, elem := range n.Elements {
			if err := cg.genExpr(elem); err != nil {
				return err
			}
			cg.storeElemAt(mem(sym.Offset+i*elemSize), elemSize)
		}
		cg.line("    lea rax, %s", mem(sym.Offset))

	case *IndexExpr:
		elemSize, elemType, err := cg.genIndexAddr(n)
		if err != nil {
			return err
		}
		if _, isStruct := cg.types.Lookup(elemType); isStruct {
			// struct elements yield their address, for field access
			return nil
		}
		cg.loadElem(elemSize)

	case *StructLiteral:
		sym, ok := cg.syms.Last()
		if !ok {
			return fmt.Errorf("struct literal outside of a declaration")
		}
		for _, f := range n.Fields {
			off, ok := cg.types.FieldOffset(n.TypeName, f.Name)
			if !ok {
				cg.line("    mov rax, 0 ; unknown field '%s.%s'", n.TypeName, f.Name)
				continue
			}
			if err := cg.genExpr(f.Value); err != nil {
				return err
			}
			cg.line("    mov %s, rax", mem(sym.Offset+off))
		}
		cg.line("    lea rax, %s", mem(sym.Offset))

	case *MemberExpr:
		return cg.genFieldLoad(n)

	default:
		return fmt.Errorf("codegen: unknown expression node %T", e)
	}
	return nil
}

// genFieldLoad emits the three field-access shapes: through a dereferenced
// pointer variable, through a plain variable (direct struct or
// pointer-to-struct), and through an arbitrary address-producing
// expression such as a[i].field.
func (cg *CodeGen) genFieldLoad(n *MemberExpr) error {
	switch obj := n.Left.(type) {
	case *DerefExpr:
		if ref, ok := obj.Right.(*VarRef); ok {
			sym, found := cg.syms.Lookup(ref.Name)
			if !found {
				cg.line("    mov rax, 0 ; unknown variable '%s'", ref.Name)
				return nil
			}
			off, ok := cg.types.FieldOffset(sym.TypeName, n.Member)
			if !ok {
				cg.line("    mov rax, 0 ; unknown field '%s.%s'", sym.TypeName, n.Member)
				return nil
			}
			cg.line("    mov rax, %s", mem(sym.Offset))
			cg.line("    mov rax, [rax+%d]", off)
			return nil
		}

	case *VarRef:
		if sym, found := cg.syms.Lookup(obj.Name); found {
			off, ok := cg.types.FieldOffset(sym.TypeName, n.Member)
			if !ok {
				cg.line("    mov rax, 0 ; unknown field '%s.%s'", sym.TypeName, n.Member)
				return nil
			}
			if sym.IsPointer {
				cg.line("    mov rax, %s", mem(sym.Offset))
				cg.line("    mov rax, [rax+%d]", off)
			} else {
				cg.line("    mov rax, %s", mem(sym.Offset+off))
			}
			return nil
		}
		if g, found := cg.globals.Lookup(obj.Name); found {
			off, ok := cg.types.FieldOffset(g.TypeName, n.Member)
			if !ok {
				cg.line("    mov rax, 0 ; unknown field '%s.%s'", g.TypeName, n.Member)
				return nil
			}
			if g.IsPointer {
				cg.line("    mov rax, [%s]", g.Name)
				cg.line("    mov rax, [rax+%d]", off)
			} else {
				cg.line("    mov rax, [%s+%d]", g.Name, off)
			}
			return nil
		}
		cg.line("    mov rax, 0 ; unknown variable '%s'", obj.Name)
		return nil
	}

	// General case: the object expression leaves an element address in rax.
	structType, err := cg.resolveStructType(n.Left)
	if err != nil {
		return err
	}
	off, ok := cg.types.FieldOffset(structType, n.Member)
	if !ok {
		cg.line("    mov rax, 0 ; unknown field '%s.%s'", structType, n.Member)
		return nil
	}
	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	cg.line("    mov rax, [rax+%d]", off)
	return nil
}

// genStmt emits the instructions that carry out s.
func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {

	case *ExprStmt:
		return cg.genExpr(n.Expr)

	case *VariableDecl:
		return cg.genLet(n)

	case *Assignment:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		if sym, ok := cg.syms.Lookup(n.Name); ok {
			cg.line("    mov %s, rax", mem(sym.Offset))
			return nil
		}
		if g, ok := cg.globals.Lookup(n.Name); ok {
			cg.line("    mov [%s], rax", g.Name)
			return nil
		}
		cg.comment("unknown variable '%s' in assignment", n.Name)
		return nil

	case *IndexAssign:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		cg.line("    push rax")
		elemSize, _, err := cg.genIndexAddr(&IndexExpr{Left: n.Base, Index: n.Index})
		if err != nil {
			return err
		}
		cg.line("    mov rbx, rax")
		cg.line("    pop rax")
		cg.storeElem(elemSize)
		return nil

	case *MemberAssign:
		return cg.genFieldStore(n)

	case *ReturnStmt:
		if n.Expr != nil {
			if err := cg.genExpr(n.Expr); err != nil {
				return err
			}
		} else {
			cg.line("    xor rax, rax")
		}
		cg.line("    leave")
		cg.line("    ret")
		return nil

	case *BlockStmt:
		for _, stmt := range n.Stmts {
			if err := cg.genStmt(stmt); err != nil {
				return err
			}
		}
		return nil

	case *IfStmt:
		if err := cg.genExpr(n.Condition); err != nil {
			return err
		}
		l := cg.newLabel()
		cg.line("    test rax, rax")
		if n.ElseBody != nil {
			cg.line("    jz .Lelse_%d", l)
			if err := cg.genStmt(n.Body); err != nil {
				return err
			}
			cg.line("    jmp .Lend_%d", l)
			cg.line(".Lelse_%d:", l)
			if err := cg.genStmt(n.ElseBody); err != nil {
				return err
			}
			cg.line(".Lend_%d:", l)
		} else {
			cg.line("    jz .Lend_%d", l)
			if err := cg.genStmt(n.Body); err != nil {
				return err
			}
			cg.line(".Lend_%d:", l)
		}
		return nil

	case *WhileStmt:
		l := cg.newLabel()
		cg.line(".Lwhile_%d:", l)
		if err := cg.genExpr(n.Condition); err != nil {
			return err
		}
		cg.line("    test rax, rax")
		cg.line("    jz .Lwhile_end_%d", l)
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.line("    jmp .Lwhile_%d", l)
		cg.line(".Lwhile_end_%d:", l)
		return nil

	default:
		return fmt.Errorf("codegen: unknown statement node %T", s)
	}
}

// genFieldStore mirrors genFieldLoad for  object.member = value;
// Struct fields are machine-word slots, so stores are always qword.
func (cg *CodeGen) genFieldStore(n *MemberAssign) error {
	if err := cg.genExpr(n.Value); err != nil {
		return err
	}

	switch obj := n.Object.(type) {
	case *DerefExpr:
		if ref, ok := obj.Right.(*VarRef); ok {
			sym, found := cg.syms.Lookup(ref.Name)
			if !found {
				cg.comment("unknown variable '%s' in field assignment", ref.Name)
				return nil
			}
			off, ok := cg.types.FieldOffset(sym.TypeName, n.Member)
			if !ok {
				cg.comment("unknown field '%s.%s'", sym.TypeName, n.Member)
				return nil
			}
			cg.line("    mov rbx, %s", mem(sym.Offset))
			cg.line("    mov [rbx+%d], rax", off)
			return nil
		}

	case *VarRef:
		if sym, found := cg.syms.Lookup(obj.Name); found {
			off, ok := cg.types.FieldOffset(sym.TypeName, n.Member)
			if !ok {
				cg.comment("unknown field '%s.%s'", sym.TypeName, n.Member)
				return nil
			}
			if sym.IsPointer {
				cg.line("    mov rbx, %s", mem(sym.Offset))
				cg.line("    mov [rbx+%d], rax", off)
			} else {
				cg.line("    mov %s, rax", mem(sym.Offset+off))
			}
			return nil
		}
		if g, found := cg.globals.Lookup(obj.Name); found {
			off, ok := cg.types.FieldOffset(g.TypeName, n.Member)
			if !ok {
				cg.comment("unknown field '%s.%s'", g.TypeName, n.Member)
				return nil
			}
			if g.IsPointer {
				cg.line("    mov rbx, [%s]", g.Name)
				cg.line("    mov [rbx+%d], rax", off)
			} else {
				cg.line("    mov [%s+%d], rax", g.Name, off)
			}
			return nil
		}
		cg.comment("unknown variable '%s' in field assignment", obj.Name)
		return nil
	}

	// General case: evaluate the object for its element address.
	structType, err := cg.resolveStructType(n.Object)
	if err != nil {
		return err
	}
	off, ok := cg.types.FieldOffset(structType, n.Member)
	if !ok {
		cg.comment("unknown field '%s.%s'", structType, n.Member)
		return nil
	}
	cg.line("    push rax")
	if err := cg.genExpr(n.Object); err != nil {
		return err
	}
	cg.line("    mov rbx, rax")
	cg.line("    pop rax")
	cg.line("    mov [rbx+%d], rax", off)
	return nil
}

// genLet allocates the local slot for a declaration and runs its
// initializer.
func (cg *CodeGen) genLet(n *VariableDecl) error {
	spec := n.Type
	if spec != nil {
		switch {
		case spec.IsArray:
			elemSize := cg.types.SizeOf(spec.Base)
			cg.syms.AddArray(n.Name, spec.Base, spec.ArrayCount, elemSize)
			if n.Init == nil {
				return nil
			}
			if _, ok := n.Init.(*InitializerList); !ok {
				return fmt.Errorf("array %q must be initialized with an array literal", n.Name)
			}
			return cg.genExpr(n.Init)

		case spec.IsPointer:
			sym := cg.syms.AddPointer(n.Name, spec.Base)
			if n.Init != nil {
				if err := cg.genExpr(n.Init); err != nil {
					return err
				}
				cg.line("    mov %s, rax", mem(sym.Offset))
			}
			return nil

		default:
			if size, isStruct := cg.structSize(spec.Base); isStruct {
				cg.syms.AddStruct(n.Name, spec.Base, size)
				if n.Init == nil {
					return nil
				}
				if _, ok := n.Init.(*StructLiteral); !ok {
					return fmt.Errorf("struct %q must be initialized with a struct literal", n.Name)
				}
				return cg.genExpr(n.Init)
			}
			sym := cg.syms.Add(n.Name, 1, spec.Base)
			if n.Init != nil {
				if err := cg.genExpr(n.Init); err != nil {
					return err
				}
				cg.line("    mov %s, rax", mem(sym.Offset))
			}
			return nil
		}
	}

	// No annotation: infer the slot shape from the initializer.
	switch init := n.Init.(type) {
	case *InitializerList:
		cg.syms.Add(n.Name, len(init.Elements), "i64")
		return cg.genExpr(init)
	case *StructLiteral:
		size, isStruct := cg.structSize(init.TypeName)
		if !isStruct {
			return fmt.Errorf("unknown struct type %q", init.TypeName)
		}
		cg.syms.AddStruct(n.Name, init.TypeName, size)
		return cg.genExpr(init)
	case *StringLiteral:
		sym := cg.syms.AddPointer(n.Name, "u8")
		if err := cg.genExpr(init); err != nil {
			return err
		}
		cg.line("    mov %s, rax", mem(sym.Offset))
		return nil
	case nil:
		cg.syms.Add(n.Name, 1, "i64")
		return nil
	default:
		sym := cg.syms.Add(n.Name, 1, "i64")
		if err := cg.genExpr(init); err != nil {
			return err
		}
		cg.line("    mov %s, rax", mem(sym.Offset))
		return nil
	}
}

// genFunction emits one function: body first into a scratch buffer so the
// prologue can carry the final frame size, which is only known once every
// let in the body has grown the symbol table.
func (cg *CodeGen) genFunction(f *FunctionDecl) error {
	if f.IsForward {
		return nil
	}
	if len(f.Params) > len(abiRegs) {
		return fmt.Errorf("function %q: more than six parameters are not supported", f.Name)
	}

	cg.syms = NewSymbolTable()
	body := &strings.Builder{}
	cg.buf = body

	// Parameters spill from their ABI registers into fresh stack slots.
	for i, p := range f.Params {
		var sym Symbol
		if p.Type.IsPointer {
			sym = cg.syms.AddPointer(p.Name, p.Type.Base)
		} else {
			sym = cg.syms.Add(p.Name, 1, p.Type.Base)
		}
		cg.line("    mov %s, %s", mem(sym.Offset), abiRegs[i])
	}

	if err := cg.genStmt(f.Body); err != nil {
		return err
	}

	// implicit return 0
	cg.line("    xor rax, rax")
	cg.line("    leave")
	cg.line("    ret")

	frame := cg.syms.StackSize + scratchBytes
	frame = (frame + 15) &^ 15

	fmt.Fprintf(&cg.text, "%s:\n", f.Name)
	fmt.Fprintf(&cg.text, "    push rbp\n")
	fmt.Fprintf(&cg.text, "    mov rbp, rsp\n")
	fmt.Fprintf(&cg.text, "    sub rsp, %d\n", frame)
	cg.text.WriteString(body.String())
	cg.text.WriteByte('\n')
	return nil
}

// registerGlobal records a top-level let in the global table. Globals are
// laid out entirely at emission time; no code runs for them.
func (cg *CodeGen) registerGlobal(d *GlobalDecl) error {
	g := GlobalVar{Name: d.Name, TypeName: "i64"}
	if d.Type != nil {
		g.TypeName = d.Type.Base
		g.IsPointer = d.Type.IsPointer
		g.IsMutable = d.Type.IsMutable
		if d.Type.IsArray {
			g.IsArray = true
			g.ArrayCount = d.Type.ArrayCount
			g.ElemType = d.Type.Base
		}
	}

	switch init := d.Init.(type) {
	case nil:
		// bss
	case *Literal:
		g.IsInitialized = true
		g.InitValue = init.Value
	case *UnaryExpr:
		lit, ok := init.Right.(*Literal)
		if !ok || init.Op != MINUS {
			return fmt.Errorf("global %q must be initialized with a literal", d.Name)
		}
		g.IsInitialized = true
		g.InitValue = -lit.Value
	case *InitializerList:
		if !g.IsArray {
			g.IsArray = true
			g.ArrayCount = len(init.Elements)
			g.ElemType = "i64"
		}
		g.IsInitialized = true
		for _, e := range init.Elements {
			lit, ok := e.(*Literal)
			if !ok {
				return fmt.Errorf("global array %q must be initialized with literals", d.Name)
			}
			g.ArrayInit = append(g.ArrayInit, lit.Value)
		}
	case *StringLiteral:
		if !g.IsArray {
			return fmt.Errorf("global %q: string initializers require an array type", d.Name)
		}
		g.IsInitialized = true
		g.StrInit = init.Raw
		g.HasStrInit = true
	default:
		return fmt.Errorf("global %q must be initialized with a literal", d.Name)
	}

	cg.globals.Add(g)
	return nil
}

// dataDirective maps an element size to its NASM data directive.
func dataDirective(size int) string {
	switch size {
	case 1:
		return "db"
	case 2:
		return "dw"
	case 4:
		return "dd"
	default:
		return "dq"
	}
}

// bssDirective maps an element size to its NASM reserve directive.
func bssDirective(size int) string {
	switch size {
	case 1:
		return "resb"
	case 2:
		return "resw"
	case 4:
		return "resd"
	default:
		return "resq"
	}
}

// emitData writes the data section: interned strings first, in
// declaration-index order, then initialized globals.
func (cg *CodeGen) emitData(out *strings.Builder) {
	out.WriteString("section .data\n")
	for _, e := range cg.strings.All() {
		parts := make([]string, 0, len(e.Data)+1)
		for _, b := range e.Data {
			parts = append(parts, fmt.Sprintf("%d", b))
		}
		parts = append(parts, "0")
		fmt.Fprintf(out, "%s: db %s\n", e.Label, strings.Join(parts, ", "))
	}
	for _, g := range cg.globals.All() {
		if !g.IsInitialized {
			continue
		}
		if g.IsArray {
			elemSize := typeSize(g.ElemType)
			if g.HasStrInit {
				data := decodeEscapes(g.StrInit)
				vals := make([]string, 0, g.ArrayCount)
				for _, b := range data {
					vals = append(vals, fmt.Sprintf("%d", b))
				}
				vals = append(vals, "0") // terminator
				for len(vals) < g.ArrayCount {
					vals = append(vals, "0") // pad to the declared count
				}
				fmt.Fprintf(out, "%s: db %s\n", g.Name, strings.Join(vals, ", "))
				continue
			}
			vals := make([]string, 0, g.ArrayCount)
			for _, v := range g.ArrayInit {
				vals = append(vals, fmt.Sprintf("%d", v))
			}
			for len(vals) < g.ArrayCount {
				vals = append(vals, "0")
			}
			fmt.Fprintf(out, "%s: %s %s\n", g.Name, dataDirective(elemSize), strings.Join(vals, ", "))
			continue
		}
		size := 8
		if !g.IsPointer {
			size = typeSize(g.TypeName)
		}
		fmt.Fprintf(out, "%s: %s %d\n", g.Name, dataDirective(size), g.InitValue)
	}
}

// emitBss writes the bss section for uninitialized globals; it is omitted
// entirely when every global is initialized.
func (cg *CodeGen) emitBss(out *strings.Builder) {
	any := false
	for _, g := range cg.globals.All() {
		if !g.IsInitialized {
			any = true
			break
		}
	}
	if !any {
		return
	}
	out.WriteString("\nsection .bss\n")
	for _, g := range cg.globals.All() {
		if g.IsInitialized {
			continue
		}
		if g.IsArray {
			fmt.Fprintf(out, "%s: %s %d\n", g.Name, bssDirective(typeSize(g.ElemType)), g.ArrayCount)
			continue
		}
		size := 8
		if !g.IsPointer {
			size = typeSize(g.TypeName)
		}
		fmt.Fprintf(out, "%s: %s 1\n", g.Name, bssDirective(size))
	}
}

// Generate walks the program and produces the complete NASM-compatible
// assembly text. types must be the table built from the same program.
func Generate(prog *Program, types *TypeTable, opt int) (string, error) {
	cg := newCodeGen(opt)
	cg.types = types

	for _, decl := range prog.Decls {
		if g, ok := decl.(*GlobalDecl); ok {
			if err := cg.registerGlobal(g); err != nil {
				return "", err
			}
		}
	}

	// user functions, in source order
	for _, decl := range prog.Decls {
		if f, ok := decl.(*FunctionDecl); ok {
			if err := cg.genFunction(f); err != nil {
				return "", err
			}
		}
	}

	var out strings.Builder
	cg.emitData(&out)
	cg.emitBss(&out)

	out.WriteString("\nsection .text\n")
	out.WriteString("global _start\n\n")
	out.WriteString("_start:\n")
	out.WriteString("    call main\n")
	out.WriteString("    mov rdi, rax\n")
	out.WriteString("    mov rax, 60\n")
	out.WriteString("    syscall\n\n")

	emitRuntimeHelpers(&out)

	out.WriteString(cg.text.String())
	return out.String(), nil
}
