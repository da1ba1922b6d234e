// Package lexer turns Chef source text into a lazy token sequence.
package lexer

import "fmt"

type TokenType string

const (
	// Single-character tokens
	TokenLParen    TokenType = "("
	TokenRParen    TokenType = ")"
	TokenLBrace    TokenType = "{"
	TokenRBrace    TokenType = "}"
	TokenComma     TokenType = ","
	TokenDot       TokenType = "."
	TokenMinus     TokenType = "-"
	TokenPlus      TokenType = "+"
	TokenSemicolon TokenType = ";"
	TokenSlash     TokenType = "/"
	TokenStar      TokenType = "*"

	// One or two character tokens
	TokenBang         TokenType = "!"
	TokenBangEqual    TokenType = "!="
	TokenEqual        TokenType = "="
	TokenEqualEqual   TokenType = "=="
	TokenGreater      TokenType = ">"
	TokenGreaterEqual TokenType = ">="
	TokenLess         TokenType = "<"
	TokenLessEqual    TokenType = "<="

	// Literals
	TokenIdent  TokenType = "IDENT"
	TokenString TokenType = "STRING"
	TokenNumber TokenType = "NUMBER"

	// Keywords
	TokenAnd         TokenType = "AND"
	TokenCheck       TokenType = "CHECK"
	TokenThen        TokenType = "THEN"
	TokenOtherwise   TokenType = "OTHERWISE"
	TokenFalse       TokenType = "FALSE"
	TokenIngredient  TokenType = "INGREDIENT"
	TokenNil         TokenType = "NIL"
	TokenOr          TokenType = "OR"
	TokenRecipe      TokenType = "RECIPE"
	TokenServe       TokenType = "SERVE"
	TokenStir        TokenType = "STIR"
	TokenTaste       TokenType = "TASTE"
	TokenThis        TokenType = "THIS"
	TokenTrue        TokenType = "TRUE"
	TokenIngredients TokenType = "INGREDIENTS"
	TokenUtensils    TokenType = "UTENSILS"

	// Other
	TokenError TokenType = "ERROR"
	TokenEOF   TokenType = "EOF"
)

var keywords = map[string]TokenType{
	"and":         TokenAnd,
	"check":       TokenCheck,
	"then":        TokenThen,
	"otherwise":   TokenOtherwise,
	"false":       TokenFalse,
	"ingredient":  TokenIngredient,
	"nil":         TokenNil,
	"or":          TokenOr,
	"Recipe":      TokenRecipe,
	"serve":       TokenServe,
	"stir":        TokenStir,
	"taste":       TokenTaste,
	"this":        TokenThis,
	"true":        TokenTrue,
	"Ingredients": TokenIngredients,
	"Utensils":    TokenUtensils,
}

// Token is one lexical unit. For TokenError, Lexeme holds the diagnostic
// message instead of source text.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
}

func (t Token) String() string {
	return fmt.Sprintf("[%s] '%s'", t.Type, t.Lexeme)
}

// Scanner produces tokens on demand; it never reads past the token the
// caller asked for. Malformed input yields a TokenError and scanning
// continues at the next byte.
type Scanner struct {
	source  string
	start   int
	current int
	line    int
}

func NewScanner(source string) *Scanner {
	return &Scanner{
		source: source,
		line:   1,
	}
}

// NextToken scans and returns the next token. After the end of input it
// keeps returning EOF tokens.
func (s *Scanner) NextToken() Token {
	s.skipWhitespace()
	s.start = s.current
	if s.isAtEnd() {
		return s.makeToken(TokenEOF)
	}

	c := s.advance()
	switch c {
	case '(':
		return s.makeToken(TokenLParen)
	case ')':
		return s.makeToken(TokenRParen)
	case '{':
		return s.makeToken(TokenLBrace)
	case '}':
		return s.makeToken(TokenRBrace)
	case ';':
		return s.makeToken(TokenSemicolon)
	case ',':
		return s.makeToken(TokenComma)
	case '.':
		return s.makeToken(TokenDot)
	case '-':
		return s.makeToken(TokenMinus)
	case '+':
		return s.makeToken(TokenPlus)
	case '/':
		return s.makeToken(TokenSlash)
	case '*':
		return s.makeToken(TokenStar)
	case '!':
		if s.match('=') {
			return s.makeToken(TokenBangEqual)
		}
		return s.makeToken(TokenBang)
	case '=':
		if s.match('=') {
			return s.makeToken(TokenEqualEqual)
		}
		return s.makeToken(TokenEqual)
	case '<':
		if s.match('=') {
			return s.makeToken(TokenLessEqual)
		}
		return s.makeToken(TokenLess)
	case '>':
		if s.match('=') {
			return s.makeToken(TokenGreaterEqual)
		}
		return s.makeToken(TokenGreater)
	case '"':
		return s.stringToken()
	}
	if isDigit(c) {
		return s.numberToken()
	}
	if isAlpha(c) {
		return s.identifierToken()
	}
	return s.errorToken(fmt.Sprintf("Unexpected character '%c'.", c))
}

// ScanTokens drains the scanner, EOF token included.
func (s *Scanner) ScanTokens() []Token {
	var tokens []Token
	for {
		tok := s.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func (s *Scanner) identifierToken() Token {
	for isAlphaNumeric(s.peek()) {
		s.advance()
	}
	text := s.source[s.start:s.current]
	if kind, ok := keywords[text]; ok {
		return s.makeToken(kind)
	}
	return s.makeToken(TokenIdent)
}

func (s *Scanner) numberToken() Token {
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	return s.makeToken(TokenNumber)
}

func (s *Scanner) stringToken() Token {
	for s.peek() != '"' && !s.isAtEnd() {
		if s.peek() == '\n' {
			s.line++
		}
		s.advance()
	}
	if s.isAtEnd() {
		return s.errorToken("Unterminated string.")
	}
	s.advance()
	return s.makeToken(TokenString)
}

func (s *Scanner) makeToken(t TokenType) Token {
	return Token{Type: t, Lexeme: s.source[s.start:s.current], Line: s.line}
}

func (s *Scanner) errorToken(message string) Token {
	return Token{Type: TokenError, Lexeme: message, Line: s.line}
}

func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.source[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) advance() byte {
	s.current++
	return s.source[s.current-1]
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return 0
	}
	return s.source[s.current+1]
}

func (s *Scanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func (s *Scanner) skipWhitespace() {
	for !s.isAtEnd() {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.advance()
		case '\n':
			s.line++
			s.advance()
		case '/':
			if s.peekNext() != '/' {
				return
			}
			for s.peek() != '\n' && !s.isAtEnd() {
				s.advance()
			}
		default:
			return
		}
	}
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || isDigit(c)
}
