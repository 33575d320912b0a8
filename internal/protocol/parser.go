package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Diagnostic explains why a block produced no action.
type Diagnostic struct {
	Line   int    // line of the ACTION header
	Action string // action name as written
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Action, d.Reason)
}

// Parser assembles tokens into actions.
type Parser struct {
	l           *Lexer
	diagnostics []Diagnostic

	// block under construction
	open   bool
	name   string
	kind   Kind
	known  bool
	line   int
	fields map[string]string
	field  string
	buf    []string
}

// NewParser creates a parser over a lexer.
func NewParser(l *Lexer) *Parser {
	return &Parser{l: l}
}

// Parse extracts every well-formed action block from text.
func Parse(text string) []Action {
	actions, _ := ParseWithDiagnostics(text)
	return actions
}

// ParseWithDiagnostics is Parse plus the reasons blocks were dropped.
func ParseWithDiagnostics(text string) ([]Action, []Diagnostic) {
	p := NewParser(NewLexer(text))
	actions := p.ParseAll()
	return actions, p.Diagnostics()
}

// Diagnostics returns the drop reasons collected by ParseAll.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diagnostics
}

// ParseAll consumes the lexer and returns the accepted actions in order.
func (p *Parser) ParseAll() []Action {
	var actions []Action
	emit := func() {
		if a, ok := p.closeBlock(); ok {
			actions = append(actions, a)
		}
	}

	for {
		tok := p.l.NextToken()
		switch tok.Type {
		case TokenEOF:
			emit()
			return actions
		case TokenHeader:
			emit()
			p.openBlock(tok)
		case TokenSentinel:
			emit()
		case TokenField:
			if p.open && p.known {
				if schema, _ := SchemaFor(p.kind); schema.Recognizes(tok.Name) {
					p.commitField()
					p.field = tok.Name
					p.buf = p.buf[:0]
					if tok.Value != "" {
						p.buf = append(p.buf, tok.Value)
					}
					continue
				}
			}
			p.appendText(tok.Raw)
		default:
			p.appendText(tok.Raw)
		}
	}
}

func (p *Parser) openBlock(tok Token) {
	p.open = true
	p.name = tok.Name
	p.kind, p.known = ParseKind(tok.Name)
	p.line = tok.Line
	p.fields = make(map[string]string)
	p.field = ""
	p.buf = p.buf[:0]
}

// appendText extends the current multi-line value. Text outside a field is ignored.
func (p *Parser) appendText(raw string) {
	if !p.open || p.field == "" {
		return
	}
	p.buf = append(p.buf, raw)
}

func (p *Parser) commitField() {
	if p.field == "" {
		return
	}
	// First occurrence wins.
	if _, dup := p.fields[p.field]; !dup {
		p.fields[p.field] = strings.TrimSpace(strings.Join(p.buf, "\n"))
	}
	p.field = ""
	p.buf = p.buf[:0]
}

// closeBlock finalizes the open block. A block is accepted whole or not at all.
func (p *Parser) closeBlock() (Action, bool) {
	if !p.open {
		return Action{}, false
	}
	p.commitField()
	p.open = false

	if !p.known {
		p.drop("unknown action")
		return Action{}, false
	}

	schema, _ := SchemaFor(p.kind)
	fields := p.fields

	for _, name := range schema.Required {
		v, ok := fields[name]
		if !ok {
			p.drop("missing required field " + name)
			return Action{}, false
		}
		if v == "" && !contains(schema.AllowEmpty, name) {
			p.drop("empty required field " + name)
			return Action{}, false
		}
	}

	if len(schema.AnyOf) > 0 {
		found := false
		for _, name := range schema.AnyOf {
			if fields[name] != "" {
				found = true
				break
			}
		}
		if !found {
			p.drop("needs one of " + strings.Join(schema.AnyOf, ", "))
			return Action{}, false
		}
	}

	for _, name := range schema.Numeric {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			// Non-numeric values fall back to the default.
			delete(fields, name)
		}
	}

	for name, def := range schema.Defaults {
		if v, ok := fields[name]; !ok || v == "" {
			fields[name] = def
		}
	}

	for _, name := range schema.Lower {
		if v, ok := fields[name]; ok {
			fields[name] = strings.ToLower(v)
		}
	}

	return Action{Kind: p.kind, Fields: fields}, true
}

func (p *Parser) drop(reason string) {
	p.diagnostics = append(p.diagnostics, Diagnostic{
		Line:   p.line,
		Action: p.name,
		Reason: reason,
	})
}
