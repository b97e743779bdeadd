package compiler

import "fmt"

// syscallArgRegs is the Linux syscall argument register sequence, which
// differs from the function-call ABI in the fourth slot (r10, not rcx).
var syscallArgRegs = []string{"rdi", "rsi", "rdx", "r10", "r8", "r9"}

// genCall lowers a call expression. Builtin names compile to syscalls or
// inline sequences; anything else becomes a System V call with register
// arguments.
func (cg *CodeGen) genCall(n *FunctionCall) error {
	switch n.Name {
	case "print":
		return cg.genPrint(n, false)
	case "println":
		return cg.genPrint(n, true)
	case "print_int":
		if err := cg.genArg(n, 0); err != nil {
			return err
		}
		cg.line("    mov rdi, rax")
		cg.line("    call __print_int")
		return nil
	case "exit":
		if len(n.Args) > 0 {
			if err := cg.genExpr(n.Args[0]); err != nil {
				return err
			}
			cg.line("    mov rdi, rax")
		} else {
			cg.line("    xor rdi, rdi")
		}
		cg.line("    mov rax, 60")
		cg.line("    syscall")
		return nil
	case "strcmp", "strcpy":
		if err := cg.genArg(n, 0); err != nil {
			return err
		}
		cg.line("    push rax")
		if err := cg.genArg(n, 1); err != nil {
			return err
		}
		cg.line("    mov rsi, rax")
		cg.line("    pop rdi")
		cg.line("    call __%s", n.Name)
		return nil
	case "strlen":
		if err := cg.genArg(n, 0); err != nil {
			return err
		}
		cg.line("    mov rdi, rax")
		cg.line("    call __strlen")
		return nil
	case "open":
		return cg.genOpen(n)
	case "read", "write":
		num := 0
		if n.Name == "write" {
			num = 1
		}
		if err := cg.genArg(n, 0); err != nil {
			return err
		}
		cg.line("    push rax")
		if err := cg.genArg(n, 1); err != nil {
			return err
		}
		cg.line("    push rax")
		if err := cg.genArg(n, 2); err != nil {
			return err
		}
		cg.line("    mov rdx, rax")
		cg.line("    pop rsi")
		cg.line("    pop rdi")
		cg.line("    mov rax, %d", num)
		cg.line("    syscall")
		return nil
	case "close":
		if err := cg.genArg(n, 0); err != nil {
			return err
		}
		cg.line("    mov rdi, rax")
		cg.line("    mov rax, 3")
		cg.line("    syscall")
		return nil
	case "malloc":
		return cg.genMalloc(n)
	case "free":
		return cg.genFree(n)
	case "syscall", "syscall6":
		return cg.genRawSyscall(n)
	}

	// Ordinary System V call: evaluate left to right onto the stack,
	// then pop into the argument registers in reverse so evaluation
	// order is preserved.
	if len(n.Args) > len(abiRegs) {
		return fmt.Errorf("call to %q: more than six arguments are not supported", n.Name)
	}
	for _, arg := range n.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
		cg.line("    push rax")
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		cg.line("    pop %s", abiRegs[i])
	}
	cg.line("    call %s", n.Name)
	return nil
}

// genArg evaluates argument i, failing loudly when the call is too short.
func (cg *CodeGen) genArg(n *FunctionCall, i int) error {
	if i >= len(n.Args) {
		return fmt.Errorf("builtin %q expects at least %d argument(s)", n.Name, i+1)
	}
	return cg.genExpr(n.Args[i])
}

// genPrint lowers print/println to write(1, ptr, len). A string-literal
// argument carries its length in rbx; any other argument is measured with
// __strlen first. println then writes a single newline byte staged in the
// frame's scratch area.
func (cg *CodeGen) genPrint(n *FunctionCall, newline bool) error {
	if err := cg.genArg(n, 0); err != nil {
		return err
	}
	if _, isLit := n.Args[0].(*StringLiteral); isLit {
		cg.line("    mov rsi, rax")
		cg.line("    mov rdx, rbx")
	} else {
		cg.line("    push rax")
		cg.line("    mov rdi, rax")
		cg.line("    call __strlen")
		cg.line("    mov rdx, rax")
		cg.line("    pop rsi")
	}
	cg.line("    mov rax, 1")
	cg.line("    mov rdi, 1")
	cg.line("    syscall")

	if newline {
		slot := cg.syms.StackSize + 8 // below every live local, inside the scratch area
		cg.line("    mov byte %s, 10", mem(-slot))
		cg.line("    mov rax, 1")
		cg.line("    mov rdi, 1")
		cg.line("    lea rsi, %s", mem(-slot))
		cg.line("    mov rdx, 1")
		cg.line("    syscall")
	}
	return nil
}

// genOpen lowers open(path, flags[, mode]); mode defaults to 0644.
func (cg *CodeGen) genOpen(n *FunctionCall) error {
	if err := cg.genArg(n, 0); err != nil {
		return err
	}
	cg.line("    push rax")
	if err := cg.genArg(n, 1); err != nil {
		return err
	}
	cg.line("    push rax")
	if len(n.Args) > 2 {
		if err := cg.genExpr(n.Args[2]); err != nil {
			return err
		}
		cg.line("    mov rdx, rax")
	} else {
		cg.line("    mov rdx, 420") // 0o644
	}
	cg.line("    pop rsi")
	cg.line("    pop rdi")
	cg.line("    mov rax, 2")
	cg.line("    syscall")
	return nil
}

// genMalloc lowers malloc(n) to an anonymous private mmap of n+8 bytes.
// The requested size lands in the first 8 bytes and the caller receives
// ptr+8; on mmap failure the -1 stays in rax.
func (cg *CodeGen) genMalloc(n *FunctionCall) error {
	if err := cg.genArg(n, 0); err != nil {
		return err
	}
	l := cg.newLabel()
	cg.line("    mov rbx, rax")
	cg.line("    lea rsi, [rbx+8]")
	cg.line("    mov rax, 9")
	cg.line("    xor rdi, rdi")
	cg.line("    mov rdx, 3")    // PROT_READ|PROT_WRITE
	cg.line("    mov r10, 0x22") // MAP_PRIVATE|MAP_ANONYMOUS
	cg.line("    mov r8, -1")
	cg.line("    xor r9, r9")
	cg.line("    syscall")
	cg.line("    cmp rax, -1")
	cg.line("    je .Lmalloc_done_%d", l)
	cg.line("    mov [rax], rbx")
	cg.line("    add rax, 8")
	cg.line(".Lmalloc_done_%d:", l)
	return nil
}

// genFree lowers free(ptr): a null pointer yields 0, otherwise the stored
// size is read back and the whole mapping munmapped.
func (cg *CodeGen) genFree(n *FunctionCall) error {
	if err := cg.genArg(n, 0); err != nil {
		return err
	}
	l := cg.newLabel()
	cg.line("    test rax, rax")
	cg.line("    jnz .Lfree_do_%d", l)
	cg.line("    xor rax, rax")
	cg.line("    jmp .Lfree_done_%d", l)
	cg.line(".Lfree_do_%d:", l)
	cg.line("    lea rdi, [rax-8]")
	cg.line("    mov rsi, [rdi]")
	cg.line("    add rsi, 8")
	cg.line("    mov rax, 11")
	cg.line("    syscall")
	cg.line(".Lfree_done_%d:", l)
	return nil
}

// genRawSyscall lowers syscall/syscall6(num, a1..a6). Arguments are
// evaluated left to right and pushed; the pops run in reverse so the
// number ends up in rax last and the operands land in the Linux syscall
// register sequence.
func (cg *CodeGen) genRawSyscall(n *FunctionCall) error {
	if len(n.Args) < 1 {
		return fmt.Errorf("%s requires a syscall number", n.Name)
	}
	if len(n.Args) > 1+len(syscallArgRegs) {
		return fmt.Errorf("%s supports at most six arguments", n.Name)
	}
	for _, arg := range n.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
		cg.line("    push rax")
	}
	for i := len(n.Args) - 2; i >= 0; i-- {
		cg.line("    pop %s", syscallArgRegs[i])
	}
	cg.line("    pop rax")
	cg.line("    syscall")
	return nil
}
