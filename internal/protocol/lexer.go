package protocol

import "strings"

// TokenType classifies one line of a completion.
type TokenType int

const (
	TokenEOF      TokenType = iota
	TokenHeader             // ACTION: NAME
	TokenField              // FIELD: value (candidate; the parser decides)
	TokenSentinel           // ---END---
	TokenText               // anything else
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenHeader:
		return "HEADER"
	case TokenField:
		return "FIELD"
	case TokenSentinel:
		return "SENTINEL"
	default:
		return "TEXT"
	}
}

// Sentinel terminates an action block.
const Sentinel = "---END---"

const headerPrefix = "ACTION:"

// Token is one classified line.
type Token struct {
	Type  TokenType
	Name  string // action name for headers, field name for fields
	Value string // inline value for fields
	Raw   string // the original line
	Line  int    // 1-indexed
}

// Lexer splits completion text into line tokens.
type Lexer struct {
	lines []string
	pos   int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	return &Lexer{lines: strings.Split(input, "\n")}
}

// NextToken returns the next line token, TokenEOF once exhausted.
func (l *Lexer) NextToken() Token {
	if l.pos >= len(l.lines) {
		return Token{Type: TokenEOF, Line: len(l.lines) + 1}
	}
	raw := l.lines[l.pos]
	l.pos++
	return classify(raw, l.pos)
}

func classify(raw string, line int) Token {
	trimmed := strings.TrimSpace(raw)
	tok := Token{Type: TokenText, Raw: raw, Line: line}

	if trimmed == Sentinel {
		tok.Type = TokenSentinel
		return tok
	}

	if len(trimmed) >= len(headerPrefix) && strings.EqualFold(trimmed[:len(headerPrefix)], headerPrefix) {
		name := readIdent(strings.TrimSpace(trimmed[len(headerPrefix):]))
		if name != "" {
			tok.Type = TokenHeader
			tok.Name = name
			return tok
		}
	}

	if name, value, ok := splitField(trimmed); ok {
		tok.Type = TokenField
		tok.Name = name
		tok.Value = value
	}
	return tok
}

// readIdent returns the leading word characters of s.
func readIdent(s string) string {
	i := 0
	for i < len(s) && isWordChar(s[i]) {
		i++
	}
	return s[:i]
}

// splitField recognizes "NAME: value" where NAME is upper case with underscores.
func splitField(s string) (string, string, bool) {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return "", "", false
	}
	name := s[:colon]
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && c != '_' {
			return "", "", false
		}
	}
	return name, strings.TrimSpace(s[colon+1:]), true
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
