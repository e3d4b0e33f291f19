package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Token types for the SysY scanner
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenIdent        // foo, _bar1
	TokenIntConst     // 42
	TokenFormatString // "x=%d\n"

	// Keywords
	TokenMain
	TokenConst
	TokenInt
	TokenVoid
	TokenBreak
	TokenContinue
	TokenIf
	TokenElse
	TokenWhile
	TokenGetint
	TokenPrintf
	TokenReturn

	// Operators
	TokenNot    // !
	TokenAnd    // &&
	TokenOr     // ||
	TokenPlus   // +
	TokenMinus  // -
	TokenMul    // *
	TokenDiv    // /
	TokenMod    // %
	TokenLss    // <
	TokenLeq    // <=
	TokenGre    // >
	TokenGeq    // >=
	TokenEql    // ==
	TokenNeq    // !=
	TokenAssign // =

	// Delimiters
	TokenSemicolon // ;
	TokenComma     // ,
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
)

// tokenNames uses the conventional SysY category codes.
var tokenNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenError:        "ERROR",
	TokenIdent:        "IDENFR",
	TokenIntConst:     "INTCON",
	TokenFormatString: "STRCON",
	TokenMain:         "MAINTK",
	TokenConst:        "CONSTTK",
	TokenInt:          "INTTK",
	TokenVoid:         "VOIDTK",
	TokenBreak:        "BREAKTK",
	TokenContinue:     "CONTINUETK",
	TokenIf:           "IFTK",
	TokenElse:         "ELSETK",
	TokenWhile:        "WHILETK",
	TokenGetint:       "GETINTTK",
	TokenPrintf:       "PRINTFTK",
	TokenReturn:       "RETURNTK",
	TokenNot:          "NOT",
	TokenAnd:          "AND",
	TokenOr:           "OR",
	TokenPlus:         "PLUS",
	TokenMinus:        "MINU",
	TokenMul:          "MULT",
	TokenDiv:          "DIV",
	TokenMod:          "MOD",
	TokenLss:          "LSS",
	TokenLeq:          "LEQ",
	TokenGre:          "GRE",
	TokenGeq:          "GEQ",
	TokenEql:          "EQL",
	TokenNeq:          "NEQ",
	TokenAssign:       "ASSIGN",
	TokenSemicolon:    "SEMICN",
	TokenComma:        "COMMA",
	TokenLParen:       "LPARENT",
	TokenRParen:       "RPARENT",
	TokenLBracket:     "LBRACK",
	TokenRBracket:     "RBRACK",
	TokenLBrace:       "LBRACE",
	TokenRBrace:       "RBRACE",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string // the raw text
	Line    int    // 1-based source line

	Value  int64          // TokenIntConst
	Format *FormatLiteral // TokenFormatString
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	return fmt.Sprintf("%s %s", t.Type, t.Literal)
}

// FormatLiteral is a printf format string split at each %d, with \n
// already decoded. Illegal is set when the literal contains a character
// outside the format string alphabet.
type FormatLiteral struct {
	Segments []string
	Illegal  bool
}

// Placeholders returns the number of %d conversions.
func (f *FormatLiteral) Placeholders() int {
	return len(f.Segments) - 1
}

// decodeFormat splits the body of a format string (without quotes).
// Legal characters are space, '!', and '(' through '~'; a backslash must
// start \n and a percent sign must start %d.
func decodeFormat(body string) *FormatLiteral {
	f := &FormatLiteral{}
	var seg strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '%' && i+1 < len(body) && body[i+1] == 'd':
			f.Segments = append(f.Segments, seg.String())
			seg.Reset()
			i++
		case c == '\\' && i+1 < len(body) && body[i+1] == 'n':
			seg.WriteByte('\n')
			i++
		default:
			if c == '\\' || !(c == 32 || c == 33 || (c >= 40 && c <= 126)) {
				f.Illegal = true
			}
			seg.WriteByte(c)
		}
	}
	f.Segments = append(f.Segments, seg.String())
	return f
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"main":     TokenMain,
	"const":    TokenConst,
	"int":      TokenInt,
	"void":     TokenVoid,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"getint":   TokenGetint,
	"printf":   TokenPrintf,
	"return":   TokenReturn,
}
