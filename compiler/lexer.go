package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for SysY source
// ---------------------------------------------------------------------------

// Lexer tokenizes SysY source code. Input is treated as bytes; every legal
// token is ASCII.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current character
	line    int  // current line (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.pos < len(l.input) && l.readPos > 0 && l.input[l.pos] == '\n' {
		l.line++
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	line := l.line
	if l.atEOF() {
		return Token{Type: TokenEOF, Line: line}
	}

	single := func(tt TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: tt, Literal: lit, Line: line}
	}
	double := func(second byte, long, short TokenType) Token {
		first := l.ch
		l.readChar()
		if l.ch == second {
			l.readChar()
			return Token{Type: long, Literal: string([]byte{first, second}), Line: line}
		}
		return Token{Type: short, Literal: string(first), Line: line}
	}

	switch c := l.ch; {
	case c == '+':
		return single(TokenPlus)
	case c == '-':
		return single(TokenMinus)
	case c == '*':
		return single(TokenMul)
	case c == '/':
		return single(TokenDiv)
	case c == '%':
		return single(TokenMod)
	case c == ';':
		return single(TokenSemicolon)
	case c == ',':
		return single(TokenComma)
	case c == '(':
		return single(TokenLParen)
	case c == ')':
		return single(TokenRParen)
	case c == '[':
		return single(TokenLBracket)
	case c == ']':
		return single(TokenRBracket)
	case c == '{':
		return single(TokenLBrace)
	case c == '}':
		return single(TokenRBrace)
	case c == '<':
		return double('=', TokenLeq, TokenLss)
	case c == '>':
		return double('=', TokenGeq, TokenGre)
	case c == '=':
		return double('=', TokenEql, TokenAssign)
	case c == '!':
		return double('=', TokenNeq, TokenNot)
	case c == '&' && l.peekChar() == '&':
		return double('&', TokenAnd, TokenError)
	case c == '|' && l.peekChar() == '|':
		return double('|', TokenOr, TokenError)
	case c == '"':
		return l.readFormatString(line)
	case isDigit(c):
		return l.readNumber(line)
	case isLetter(c) || c == '_':
		return l.readIdentifierOrKeyword(line)
	default:
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", c), Line: line}
	}
}

// skipWhitespaceAndComments skips whitespace, // line comments and
// /* block */ comments. It returns an error token for an unterminated
// block comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\v' || l.ch == '\f' {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			line := l.line
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEOF() {
					return Token{Type: TokenError, Literal: "unterminated block comment", Line: line}, false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}

		return Token{}, true
	}
}

// readFormatString reads a double-quoted format string.
func (l *Lexer) readFormatString(line int) Token {
	start := l.pos
	l.readChar() // opening quote
	for l.ch != '"' {
		if l.atEOF() || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated format string", Line: line}
		}
		l.readChar()
	}
	l.readChar() // closing quote
	lit := l.input[start:l.pos]
	return Token{
		Type:    TokenFormatString,
		Literal: lit,
		Line:    line,
		Format:  decodeFormat(lit[1 : len(lit)-1]),
	}
}

// readNumber reads a decimal integer literal.
func (l *Lexer) readNumber(line int) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil || v > 1<<31 {
		return Token{Type: TokenError, Literal: fmt.Sprintf("integer literal %s out of range", lit), Line: line}
	}
	return Token{Type: TokenIntConst, Literal: lit, Line: line, Value: v}
}

// readIdentifierOrKeyword reads an identifier or reserved word.
func (l *Lexer) readIdentifierOrKeyword(line int) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if tt, ok := reservedWords[lit]; ok {
		return Token{Type: tt, Literal: lit, Line: line}
	}
	return Token{Type: TokenIdent, Literal: lit, Line: line}
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Tokenize returns all tokens from the input, ending with TokenEOF. A
// character that cannot start a token is a *SyntaxError.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			return tokens, &SyntaxError{Line: tok.Line, Msg: tok.Literal}
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}
