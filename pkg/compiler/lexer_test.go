package compiler

import (
	"reflect"
	"strings"
	"testing"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  string
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1, Col: 1},
			},
		},
		{
			name:  "Basic Tokens",
			input: "+ - * / % & = ; , { } ( ) [ ] : .",
			expected: []Token{
				{Type: PLUS, Lexeme: "+", Line: 1, Col: 1},
				{Type: MINUS, Lexeme: "-", Line: 1, Col: 3},
				{Type: STAR, Lexeme: "*", Line: 1, Col: 5},
				{Type: SLASH, Lexeme: "/", Line: 1, Col: 7},
				{Type: PERCENT, Lexeme: "%", Line: 1, Col: 9},
				{Type: AND, Lexeme: "&", Line: 1, Col: 11},
				{Type: ASSIGN, Lexeme: "=", Line: 1, Col: 13},
				{Type: SEMICOLON, Lexeme: ";", Line: 1, Col: 15},
				{Type: COMMA, Lexeme: ",", Line: 1, Col: 17},
				{Type: LBRACE, Lexeme: "{", Line: 1, Col: 19},
				{Type: RBRACE, Lexeme: "}", Line: 1, Col: 21},
				{Type: LPAREN, Lexeme: "(", Line: 1, Col: 23},
				{Type: RPAREN, Lexeme: ")", Line: 1, Col: 25},
				{Type: LBRACKET, Lexeme: "[", Line: 1, Col: 27},
				{Type: RBRACKET, Lexeme: "]", Line: 1, Col: 29},
				{Type: COLON, Lexeme: ":", Line: 1, Col: 31},
				{Type: DOT, Lexeme: ".", Line: 1, Col: 33},
				{Type: EOF, Lexeme: "", Line: 1, Col: 34},
			},
		},
		{
			name:  "Multi Character Operators",
			input: "&& || ++ -- += -= *= /= %= == != <= >= ->",
			expected: []Token{
				{Type: AND_LOGICAL, Lexeme: "&&", Line: 1, Col: 1},
				{Type: OR_LOGICAL, Lexeme: "||", Line: 1, Col: 4},
				{Type: PLUS_PLUS, Lexeme: "++", Line: 1, Col: 7},
				{Type: MINUS_MINUS, Lexeme: "--", Line: 1, Col: 10},
				{Type: PLUS_ASSIGN, Lexeme: "+=", Line: 1, Col: 13},
				{Type: MINUS_ASSIGN, Lexeme: "-=", Line: 1, Col: 16},
				{Type: STAR_ASSIGN, Lexeme: "*=", Line: 1, Col: 19},
				{Type: SLASH_ASSIGN, Lexeme: "/=", Line: 1, Col: 22},
				{Type: PERCENT_ASSIGN, Lexeme: "%=", Line: 1, Col: 25},
				{Type: EQUALS, Lexeme: "==", Line: 1, Col: 28},
				{Type: NOT_EQ, Lexeme: "!=", Line: 1, Col: 31},
				{Type: LESS_EQ, Lexeme: "<=", Line: 1, Col: 34},
				{Type: GREATER_EQ, Lexeme: ">=", Line: 1, Col: 37},
				{Type: ARROW, Lexeme: "->", Line: 1, Col: 40},
				{Type: EOF, Lexeme: "", Line: 1, Col: 42},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "fn let if else while for return struct mut name _under_score x9",
			expected: []Token{
				{Type: FN, Lexeme: "fn", Line: 1, Col: 1},
				{Type: LET, Lexeme: "let", Line: 1, Col: 4},
				{Type: IF, Lexeme: "if", Line: 1, Col: 8},
				{Type: ELSE, Lexeme: "else", Line: 1, Col: 11},
				{Type: WHILE, Lexeme: "while", Line: 1, Col: 16},
				{Type: FOR, Lexeme: "for", Line: 1, Col: 22},
				{Type: RETURN, Lexeme: "return", Line: 1, Col: 26},
				{Type: STRUCT, Lexeme: "struct", Line: 1, Col: 33},
				{Type: MUT, Lexeme: "mut", Line: 1, Col: 40},
				{Type: IDENTIFIER, Lexeme: "name", Line: 1, Col: 44},
				{Type: IDENTIFIER, Lexeme: "_under_score", Line: 1, Col: 49},
				{Type: IDENTIFIER, Lexeme: "x9", Line: 1, Col: 62},
				{Type: EOF, Lexeme: "", Line: 1, Col: 64},
			},
		},
		{
			name:  "Integers",
			input: "0 42 123456",
			expected: []Token{
				{Type: INTEGER, Lexeme: "0", Line: 1, Col: 1},
				{Type: INTEGER, Lexeme: "42", Line: 1, Col: 3},
				{Type: INTEGER, Lexeme: "123456", Line: 1, Col: 6},
				{Type: EOF, Lexeme: "", Line: 1, Col: 12},
			},
		},
		{
			name:  "Strings Keep Escape Pairs Verbatim",
			input: `"abc" "a\nb" "\""`,
			expected: []Token{
				{Type: STRING, Lexeme: "abc", Line: 1, Col: 1},
				{Type: STRING, Lexeme: `a\nb`, Line: 1, Col: 7},
				{Type: STRING, Lexeme: `\"`, Line: 1, Col: 14},
				{Type: EOF, Lexeme: "", Line: 1, Col: 18},
			},
		},
		{
			name:  "Line Comments and Newlines",
			input: "x // trailing comment\n  y",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "x", Line: 1, Col: 1},
				{Type: IDENTIFIER, Lexeme: "y", Line: 2, Col: 3},
				{Type: EOF, Lexeme: "", Line: 2, Col: 4},
			},
		},
		{
			name:  "Arrow and Star",
			input: "p->x *p",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "p", Line: 1, Col: 1},
				{Type: ARROW, Lexeme: "->", Line: 1, Col: 2},
				{Type: IDENTIFIER, Lexeme: "x", Line: 1, Col: 4},
				{Type: STAR, Lexeme: "*", Line: 1, Col: 6},
				{Type: IDENTIFIER, Lexeme: "p", Line: 1, Col: 7},
				{Type: EOF, Lexeme: "", Line: 1, Col: 8},
			},
		},
		{
			name:    "Unterminated String",
			input:   "let s = \"abc",
			wantErr: "Error at line 1, col 9: unterminated string literal",
		},
		{
			name:    "Unknown Byte",
			input:   "let x = @;",
			wantErr: "Error at line 1, col 9: unexpected character",
		},
		{
			name:    "Single Pipe",
			input:   "a | b",
			wantErr: "Error at line 1, col 3: unexpected character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.input)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got tokens %v", tt.wantErr, tokens)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(tokens, tt.expected) {
				t.Errorf("token mismatch\n got: %v\nwant: %v", tokens, tt.expected)
			}
		})
	}
}

// Tokenising then concatenating the lexemes spans the source exactly,
// modulo whitespace and comments.
func TestLexRoundTrip(t *testing.T) {
	src := "fn main() -> i32 { let a = 1 + 2; return a; }"
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var joined strings.Builder
	for _, tok := range tokens {
		joined.WriteString(tok.Lexeme)
	}
	stripped := strings.Join(strings.Fields(src), "")
	if joined.String() != stripped {
		t.Errorf("lexeme concatenation %q does not span source %q", joined.String(), stripped)
	}
}
