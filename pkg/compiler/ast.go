package compiler

import (
	"fmt"
	"strings"
)

// TypeSpec is the parsed form of a type annotation: T, *T, *mut T, [T; N].
type TypeSpec struct {
	Base       string // element / pointee / scalar type name
	IsArray    bool
	ArrayCount int
	IsPointer  bool
	IsMutable  bool // *mut T
}

func (t TypeSpec) String() string {
	switch {
	case t.IsArray:
		return fmt.Sprintf("[%s; %d]", t.Base, t.ArrayCount)
	case t.IsPointer && t.IsMutable:
		return "*mut " + t.Base
	case t.IsPointer:
		return "*" + t.Base
	default:
		return t.Base
	}
}

// typeSize returns the byte size of a primitive type name. Any other name
// is a struct or pointer and occupies a machine word.
func typeSize(name string) int {
	switch name {
	case "i8", "u8":
		return 1
	case "i16", "u16":
		return 2
	case "i32", "u32":
		return 4
	default:
		return 8
	}
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in rax.
type Expr interface {
	exprNode()
	String() string
}

// Literal is a compile-time integer constant.
type Literal struct {
	Value int64
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return fmt.Sprintf("%d", l.Value) }

// StringLiteral is a string constant "...". Raw keeps the source bytes
// with escape pairs verbatim; decoding happens at pool-insertion time.
type StringLiteral struct {
	Raw string
}

func (*StringLiteral) exprNode()        {}
func (s *StringLiteral) String() string { return fmt.Sprintf("%q", s.Raw) }

// VarRef is a read of a named variable.
type VarRef struct {
	Name string
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return v.Name }

// BinaryExpr represents an arithmetic operation: Left Op Right
// for Op in + - * / %.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// CompareExpr represents == != < > <= >=, producing 0 or 1.
type CompareExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*CompareExpr) exprNode() {}
func (c *CompareExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

// LogicalExpr represents Left && Right or Left || Right. It is separate
// from BinaryExpr so code generation can short-circuit.
type LogicalExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right)
}

// UnaryExpr represents -Right or !Right.
type UnaryExpr struct {
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Right) }

// AddrOfExpr represents &Right.
type AddrOfExpr struct {
	Right Expr
}

func (*AddrOfExpr) exprNode()        {}
func (a *AddrOfExpr) String() string { return fmt.Sprintf("(& %s)", a.Right) }

// DerefExpr represents *Right.
type DerefExpr struct {
	Right Expr
}

func (*DerefExpr) exprNode()        {}
func (d *DerefExpr) String() string { return fmt.Sprintf("(* %s)", d.Right) }

// FunctionCall represents name(args).
type FunctionCall struct {
	Name string
	Args []Expr
}

func (*FunctionCall) exprNode() {}
func (c *FunctionCall) String() string {
	return fmt.Sprintf("FunctionCall(%s, args=%v)", c.Name, c.Args)
}

// InitializerList represents an array literal [e0, e1, ...].
type InitializerList struct {
	Elements []Expr
}

func (*InitializerList) exprNode() {}
func (l *InitializerList) String() string {
	return fmt.Sprintf("InitializerList(len=%d, %v)", len(l.Elements), l.Elements)
}

// IndexExpr represents Left[Index].
type IndexExpr struct {
	Left  Expr
	Index Expr
}

func (*IndexExpr) exprNode()        {}
func (e *IndexExpr) String() string { return fmt.Sprintf("(%s[%s])", e.Left, e.Index) }

// MemberExpr represents Left.Member.
type MemberExpr struct {
	Left   Expr
	Member string
}

func (*MemberExpr) exprNode()        {}
func (e *MemberExpr) String() string { return fmt.Sprintf("(%s.%s)", e.Left, e.Member) }

// FieldInit is one field: value pair in a struct literal.
type FieldInit struct {
	Name  string
	Value Expr
}

// StructLiteral represents TypeName{f: v, ...}.
type StructLiteral struct {
	TypeName string
	Fields   []FieldInit
}

func (*StructLiteral) exprNode() {}
func (s *StructLiteral) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s{", s.TypeName)
	for i, f := range s.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", f.Name, f.Value)
	}
	sb.WriteString("}")
	return sb.String()
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// VariableDecl represents  let name[: T] [= expr];  inside a function.
type VariableDecl struct {
	Name string
	Type *TypeSpec // nil when the declaration carries no annotation
	Init Expr      // may be nil
}

func (*VariableDecl) stmtNode() {}
func (d *VariableDecl) String() string {
	if d.Type != nil {
		return fmt.Sprintf("VariableDecl(let %s: %s = %s)", d.Name, d.Type, d.Init)
	}
	return fmt.Sprintf("VariableDecl(let %s = %s)", d.Name, d.Init)
}

// GlobalDecl represents a top-level  let name[: T] [= literal];
type GlobalDecl struct {
	Name string
	Type *TypeSpec
	Init Expr // literal, initializer list, string literal, or nil
}

func (*GlobalDecl) stmtNode() {}
func (d *GlobalDecl) String() string {
	if d.Type != nil {
		return fmt.Sprintf("GlobalDecl(let %s: %s = %s)", d.Name, d.Type, d.Init)
	}
	return fmt.Sprintf("GlobalDecl(let %s = %s)", d.Name, d.Init)
}

// StructField is one field declaration inside a struct definition.
type StructField struct {
	Name string
	Type TypeSpec
}

// StructDecl represents  struct Name { f: T, ... }
type StructDecl struct {
	Name   string
	Fields []StructField
}

func (*StructDecl) stmtNode() {}
func (s *StructDecl) String() string {
	return fmt.Sprintf("StructDecl(struct %s, fields=%d)", s.Name, len(s.Fields))
}

// Assignment represents  name = expr;  (identifier left-hand side only;
// indexed and member stores have their own nodes below).
type Assignment struct {
	Name  string
	Value Expr
}

func (*Assignment) stmtNode() {}
func (a *Assignment) String() string {
	return fmt.Sprintf("Assignment(%s = %s)", a.Name, a.Value)
}

// IndexAssign represents  base[index] = value;
type IndexAssign struct {
	Base  Expr
	Index Expr
	Value Expr
}

func (*IndexAssign) stmtNode() {}
func (a *IndexAssign) String() string {
	return fmt.Sprintf("IndexAssign(%s[%s] = %s)", a.Base, a.Index, a.Value)
}

// MemberAssign represents  object.member = value;
type MemberAssign struct {
	Object Expr
	Member string
	Value  Expr
}

func (*MemberAssign) stmtNode() {}
func (a *MemberAssign) String() string {
	return fmt.Sprintf("MemberAssign(%s.%s = %s)", a.Object, a.Member, a.Value)
}

// ReturnStmt represents  return [expr];
type ReturnStmt struct {
	Expr Expr // may be nil
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	return fmt.Sprintf("ReturnStmt(%s)", r.Expr)
}

// BlockStmt represents { statement; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Stmts))
}

// IfStmt represents if (cond) body [else elseBody]
type IfStmt struct {
	Condition Expr
	Body      *BlockStmt
	ElseBody  Stmt // *BlockStmt or *IfStmt chain; may be nil
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Condition, i.Body)
}

// WhileStmt represents while (cond) body. for loops desugar into a Block
// holding the init statement and a WhileStmt whose body appends the
// increment, so codegen never sees a for node.
type WhileStmt struct {
	Condition Expr
	Body      *BlockStmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Condition, w.Body)
}

// Param is one function parameter with its annotated type.
type Param struct {
	Name string
	Type TypeSpec
}

// FunctionDecl represents fn name(params) [-> T] { body } or a forward
// declaration terminated by ';' (empty body, IsForward set).
type FunctionDecl struct {
	Name       string
	Params     []Param
	ReturnType string // "" when omitted
	Body       *BlockStmt
	IsForward  bool
}

func (*FunctionDecl) stmtNode() {}
func (f *FunctionDecl) String() string {
	return fmt.Sprintf("FunctionDecl(fn %s, params=%d, forward=%v)", f.Name, len(f.Params), f.IsForward)
}

// ExprStmt represents an expression evaluated for its side effects.
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	return fmt.Sprintf("ExprStmt(%s)", e.Expr)
}

// Program is the root of the tree: the ordered top-level declarations.
type Program struct {
	Decls []Stmt
}

func (*Program) stmtNode() {}
func (p *Program) String() string {
	return fmt.Sprintf("Program(decls=%d)", len(p.Decls))
}
