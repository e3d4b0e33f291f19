package compiler

import (
	"errors"
	"testing"
)

func TestLexerOperatorsAndDelimiters(t *testing.T) {
	input := `+ - * / % ! && || < <= > >= == != = ; , ( ) [ ] { }`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenMul, "*"},
		{TokenDiv, "/"},
		{TokenMod, "%"},
		{TokenNot, "!"},
		{TokenAnd, "&&"},
		{TokenOr, "||"},
		{TokenLss, "<"},
		{TokenLeq, "<="},
		{TokenGre, ">"},
		{TokenGeq, ">="},
		{TokenEql, "=="},
		{TokenNeq, "!="},
		{TokenAssign, "="},
		{TokenSemicolon, ";"},
		{TokenComma, ","},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	input := `const int void main mainly if else while break continue return getint printf _x1`
	want := []TokenType{
		TokenConst, TokenInt, TokenVoid, TokenMain, TokenIdent, TokenIf, TokenElse,
		TokenWhile, TokenBreak, TokenContinue, TokenReturn, TokenGetint, TokenPrintf,
		TokenIdent, TokenEOF,
	}
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tt := range want {
		if tokens[i].Type != tt {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i].Type, tt)
		}
	}
}

func TestLexerIntegers(t *testing.T) {
	tokens, err := Tokenize("0 42 007 2147483648")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []int64{0, 42, 7, 2147483648}
	for i, v := range want {
		if tokens[i].Type != TokenIntConst || tokens[i].Value != v {
			t.Errorf("token[%d] = %v (%d), want INTCON %d", i, tokens[i], tokens[i].Value, v)
		}
	}
}

func TestLexerLineNumbersAndComments(t *testing.T) {
	input := "int a; // trailing\n/* block\n comment */ int b;\n\n  c"
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []struct {
		lit  string
		line int
	}{
		{"int", 1}, {"a", 1}, {";", 1},
		{"int", 3}, {"b", 3}, {";", 3},
		{"c", 5},
	}
	for i, w := range want {
		if tokens[i].Literal != w.lit || tokens[i].Line != w.line {
			t.Errorf("token[%d] = %q line %d, want %q line %d", i, tokens[i].Literal, tokens[i].Line, w.lit, w.line)
		}
	}
}

func TestLexerFormatString(t *testing.T) {
	tokens, err := Tokenize(`"x=%d, y=%d\n"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tok := tokens[0]
	if tok.Type != TokenFormatString {
		t.Fatalf("type = %v, want STRCON", tok.Type)
	}
	if tok.Format.Illegal {
		t.Error("legal format marked illegal")
	}
	if got := tok.Format.Placeholders(); got != 2 {
		t.Errorf("Placeholders = %d, want 2", got)
	}
	wantSegs := []string{"x=", ", y=", "\n"}
	for i, s := range wantSegs {
		if tok.Format.Segments[i] != s {
			t.Errorf("segment[%d] = %q, want %q", i, tok.Format.Segments[i], s)
		}
	}
}

func TestDecodeFormatLegality(t *testing.T) {
	tests := []struct {
		body    string
		illegal bool
	}{
		{"hello world!", false},
		{"(a+b)*c = ~x", false},
		{`line\n`, false},
		{"%d%d", false},
		{"#", true},
		{"$", true},
		{"&", true},
		{"'", true},
		{"50%", true},
		{"%c", true},
		{`tab\t`, true},
		{`back\`, true},
	}
	for _, tt := range tests {
		if got := decodeFormat(tt.body).Illegal; got != tt.illegal {
			t.Errorf("decodeFormat(%q).Illegal = %v, want %v", tt.body, got, tt.illegal)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"stray character", "int a;\n@", 2},
		{"single ampersand", "a & b", 1},
		{"unterminated string", "printf(\"abc\n", 1},
		{"unterminated comment", "\n/* never closed", 2},
		{"literal too large", "99999999999", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			var serr *SyntaxError
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v, want *SyntaxError", err)
			}
			if serr.Line != tt.line {
				t.Errorf("line = %d, want %d", serr.Line, tt.line)
			}
		})
	}
}
