// Package parser builds the typed AST from SIGMOS source text. It either
// returns a complete spec or a non-empty diagnostic list; a partially built
// spec is never exposed to callers.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sigmos-lang/sigmos/core/lexer"
	"github.com/sigmos-lang/sigmos/domain/diag"
	"github.com/sigmos-lang/sigmos/domain/spec"
	"github.com/sigmos-lang/sigmos/domain/value"
)

// Parse parses a whole specification document and runs structural
// validation. The returned spec is nil whenever diagnostics are non-nil.
func Parse(src string) (*spec.Spec, diag.Diagnostics) {
	toks, ds := lexer.New(src).Lex()
	if ds != nil {
		return nil, ds
	}
	p := &parser{toks: toks}
	s := p.parseSpec()
	if p.diags != nil {
		return nil, p.diags
	}
	if ds := spec.Validate(s); ds != nil {
		return nil, ds
	}
	return s, nil
}

// ParseExpr parses a standalone expression, primarily for tests and tools.
func ParseExpr(src string) (spec.Expr, diag.Diagnostics) {
	return parseExprAt(src, 0)
}

func parseExprAt(src string, base int) (spec.Expr, diag.Diagnostics) {
	toks, ds := lexer.NewAt(src, base).Lex()
	if ds != nil {
		return nil, ds
	}
	p := &parser{toks: toks}
	e := p.parseExpr()
	if p.diags == nil && p.peek().Type != lexer.EOF {
		p.unexpected("end of expression")
	}
	if p.diags != nil {
		return nil, p.diags
	}
	return e, nil
}

type parser struct {
	toks  []lexer.Token
	pos   int
	diags diag.Diagnostics
}

func (p *parser) peek() lexer.Token { return p.toks[p.pos] }
func (p *parser) peek2() lexer.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) at(t lexer.Type) bool { return p.peek().Type == t }

func (p *parser) accept(t lexer.Type) (lexer.Token, bool) {
	if p.at(t) {
		return p.advance(), true
	}
	return lexer.Token{}, false
}

func (p *parser) expect(t lexer.Type) (lexer.Token, bool) {
	if tok, ok := p.accept(t); ok {
		return tok, true
	}
	p.errorExpected(t.String())
	return lexer.Token{}, false
}

func (p *parser) keyword(word string) bool {
	return p.at(lexer.Ident) && p.peek().Lexeme == word
}

func (p *parser) errorExpected(expected ...string) {
	tok := p.peek()
	p.diags = append(p.diags, diag.Diagnostic{
		Kind:     diag.UnexpectedToken,
		Message:  fmt.Sprintf("unexpected %s", tok.Type),
		Span:     tok.Span,
		Expected: expected,
	})
}

func (p *parser) unexpected(expected ...string) {
	p.errorExpected(expected...)
}

// sync skips forward to just past the next closing brace at the current
// depth, limiting the damage of a malformed region to one diagnostic.
func (p *parser) sync() {
	depth := 0
	for !p.at(lexer.EOF) {
		switch p.peek().Type {
		case lexer.LBrace:
			depth++
		case lexer.RBrace:
			if depth == 0 {
				p.advance()
				return
			}
			depth--
		}
		p.advance()
	}
}

func (p *parser) skipSeparators() {
	for {
		if _, ok := p.accept(lexer.Comma); ok {
			continue
		}
		if _, ok := p.accept(lexer.Semicolon); ok {
			continue
		}
		return
	}
}

// ---------------------------------------------------------------------------
// Spec structure
// ---------------------------------------------------------------------------

func (p *parser) parseSpec() *spec.Spec {
	s := &spec.Spec{}
	start := p.peek().Span

	if !p.keyword("spec") {
		p.errorExpected("'spec'")
		return s
	}
	p.advance()

	name, ok := p.expect(lexer.String)
	if !ok {
		return s
	}
	s.Name = name.Str

	s.Version, ok = p.parseVersion()
	if !ok {
		return s
	}

	if _, ok := p.expect(lexer.LBrace); !ok {
		return s
	}

	seen := make(map[string]bool)
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		label := p.peek()
		if label.Type != lexer.Ident {
			p.errorExpected("block label")
			p.sync()
			continue
		}
		if seen[label.Lexeme] {
			p.diags = append(p.diags, diag.Diagnostic{
				Kind:    diag.Syntax,
				Message: fmt.Sprintf("block %q appears more than once", label.Lexeme),
				Span:    label.Span,
			})
		}
		seen[label.Lexeme] = true
		p.advance()
		if _, ok := p.expect(lexer.Colon); !ok {
			p.sync()
			continue
		}

		switch label.Lexeme {
		case "description":
			if tok, ok := p.expect(lexer.String); ok {
				s.Description = tok.Str
			}
		case "inputs":
			p.parseBlock(func() { s.Inputs = append(s.Inputs, p.parseInput()) })
		case "computed":
			p.parseBlock(func() { s.Computed = append(s.Computed, p.parseComputed()) })
		case "events":
			p.parseBlock(func() { s.Events = append(s.Events, p.parseEvent()) })
		case "constraints":
			p.parseBlock(func() { s.Constraints = append(s.Constraints, p.parseConstraint()) })
		case "lifecycle":
			p.parseBlock(func() { s.Lifecycle = append(s.Lifecycle, p.parseLifecycle()) })
		case "extensions":
			p.parseBlock(func() { s.Extensions = append(s.Extensions, p.parseExtension()) })
		case "types":
			p.parseBlock(func() { s.Types = append(s.Types, p.parseTypeDef()) })
		default:
			p.diags = append(p.diags, diag.Diagnostic{
				Kind:    diag.Syntax,
				Message: fmt.Sprintf("unknown block %q", label.Lexeme),
				Span:    label.Span,
			})
			p.sync()
		}
		p.skipSeparators()
	}
	end, _ := p.expect(lexer.RBrace)
	s.Span = start.Join(end.Span)
	return s
}

// parseVersion accepts v<major>, v<major>.<minor>, and v<major>.<minor>.<patch>.
// The lexer folds "minor.patch" into one number token, so the fractional
// lexeme is split here. The legacy "minor..patch" form is accepted too.
func (p *parser) parseVersion() (spec.Version, bool) {
	tok := p.peek()
	if tok.Type != lexer.Ident || len(tok.Lexeme) < 2 || tok.Lexeme[0] != 'v' {
		p.errorExpected("version like v1.0")
		return spec.Version{}, false
	}
	major, err := strconv.Atoi(tok.Lexeme[1:])
	if err != nil {
		p.errorExpected("version like v1.0")
		return spec.Version{}, false
	}
	p.advance()
	v := spec.Version{Major: major}

	if _, ok := p.accept(lexer.Dot); !ok {
		return v, true
	}
	num, ok := p.expect(lexer.Number)
	if !ok {
		return v, false
	}
	if minor, patch, has := splitVersionTail(num.Lexeme); has {
		v.Minor, v.Patch = minor, patch
		return v, true
	}
	v.Minor, err = strconv.Atoi(num.Lexeme)
	if err != nil {
		p.diags = append(p.diags, diag.Diagnostic{
			Kind: diag.InvalidNumber, Message: "invalid version component", Span: num.Span,
		})
		return v, false
	}

	if p.at(lexer.Dot) {
		p.advance()
		p.accept(lexer.Dot) // tolerate the ".." form
		ptok, ok := p.expect(lexer.Number)
		if !ok {
			return v, false
		}
		patch, err := strconv.Atoi(ptok.Lexeme)
		if err != nil {
			p.diags = append(p.diags, diag.Diagnostic{
				Kind: diag.InvalidNumber, Message: "invalid patch version", Span: ptok.Span,
			})
			return v, false
		}
		v.Patch = patch
	}
	return v, true
}

func splitVersionTail(lexeme string) (minor, patch int, ok bool) {
	i := strings.IndexByte(lexeme, '.')
	if i < 0 {
		return 0, 0, false
	}
	m, err1 := strconv.Atoi(lexeme[:i])
	q, err2 := strconv.Atoi(lexeme[i+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return m, q, true
}

func (p *parser) parseBlock(entry func()) {
	if _, ok := p.expect(lexer.LBrace); !ok {
		p.sync()
		return
	}
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		before := p.pos
		mark := len(p.diags)
		entry()
		p.skipSeparators()
		if p.pos == before {
			// The entry parser made no progress; bail out of the block.
			if len(p.diags) == mark {
				p.errorExpected("block entry")
			}
			p.sync()
			return
		}
		if len(p.diags) > mark {
			p.sync()
			return
		}
	}
	p.expect(lexer.RBrace)
}

func (p *parser) parseInput() spec.FieldDef {
	var f spec.FieldDef
	f.Modifiers.Required = true

	name, ok := p.expect(lexer.Ident)
	if !ok {
		return f
	}
	f.Name = name.Lexeme
	start := name.Span

	if _, ok := p.expect(lexer.Colon); !ok {
		return f
	}
	f.Type = p.parseType()

	if _, ok := p.accept(lexer.Assign); ok {
		f.Default = p.parseExpr()
	}
	if p.at(lexer.LBrace) {
		p.parseModifiers(&f)
	}
	f.Span = start.Join(p.prevSpan(start))
	return f
}

func (p *parser) prevSpan(fallback diag.Span) diag.Span {
	if p.pos == 0 {
		return fallback
	}
	return p.toks[p.pos-1].Span
}

func (p *parser) parseModifiers(f *spec.FieldDef) {
	p.expect(lexer.LBrace)
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		key, ok := p.expect(lexer.Ident)
		if !ok {
			p.sync()
			return
		}
		// Bare flags: { secret, readonly }
		if !p.at(lexer.Colon) {
			p.setFlagModifier(f, key)
			p.skipSeparators()
			continue
		}
		p.advance()
		p.setValueModifier(f, key)
		p.skipSeparators()
	}
	p.expect(lexer.RBrace)
}

func (p *parser) setFlagModifier(f *spec.FieldDef, key lexer.Token) {
	switch key.Lexeme {
	case "required":
		f.Modifiers.Required = true
		f.Modifiers.RequiredSet = true
	case "optional":
		f.Modifiers.Optional = true
		f.Modifiers.Required = false
	case "readonly":
		f.Modifiers.Readonly = true
	case "secret":
		f.Modifiers.Secret = true
	case "generate":
		f.Modifiers.Generate = true
	default:
		p.diags = append(p.diags, diag.Diagnostic{
			Kind:    diag.BadModifier,
			Message: fmt.Sprintf("unknown modifier %q", key.Lexeme),
			Span:    key.Span,
		})
	}
}

func (p *parser) setValueModifier(f *spec.FieldDef, key lexer.Token) {
	badValue := func(want string) {
		p.diags = append(p.diags, diag.Diagnostic{
			Kind:    diag.BadModifier,
			Message: fmt.Sprintf("modifier %q needs a %s value", key.Lexeme, want),
			Span:    key.Span,
		})
	}
	switch key.Lexeme {
	case "required", "optional", "readonly", "secret", "generate":
		tok := p.peek()
		var b bool
		switch {
		case tok.Type == lexer.Ident && tok.Lexeme == "true":
			b = true
		case tok.Type == lexer.Ident && tok.Lexeme == "false":
			b = false
		default:
			badValue("boolean")
			return
		}
		p.advance()
		switch key.Lexeme {
		case "required":
			f.Modifiers.Required = b
			f.Modifiers.RequiredSet = true
		case "optional":
			f.Modifiers.Optional = b
			if b {
				f.Modifiers.Required = false
			}
		case "readonly":
			f.Modifiers.Readonly = b
		case "secret":
			f.Modifiers.Secret = b
		case "generate":
			f.Modifiers.Generate = b
		}
	case "pattern", "description":
		tok, ok := p.accept(lexer.String)
		if !ok {
			badValue("string")
			return
		}
		if key.Lexeme == "pattern" {
			f.Modifiers.Pattern = tok.Str
		} else {
			f.Modifiers.Description = tok.Str
		}
	case "min", "max":
		n, ok := p.parseSignedNumber()
		if !ok {
			badValue("number")
			return
		}
		if key.Lexeme == "min" {
			f.Modifiers.Min = &n
		} else {
			f.Modifiers.Max = &n
		}
	case "min_length", "max_length":
		n, ok := p.parseSignedNumber()
		if !ok {
			badValue("number")
			return
		}
		i := int(n)
		if key.Lexeme == "min_length" {
			f.Modifiers.MinLength = &i
		} else {
			f.Modifiers.MaxLength = &i
		}
	default:
		p.diags = append(p.diags, diag.Diagnostic{
			Kind:    diag.BadModifier,
			Message: fmt.Sprintf("unknown modifier %q", key.Lexeme),
			Span:    key.Span,
		})
		// Consume the value so the block can continue.
		p.advance()
	}
}

func (p *parser) parseSignedNumber() (float64, bool) {
	neg := false
	if _, ok := p.accept(lexer.Minus); ok {
		neg = true
	}
	tok, ok := p.accept(lexer.Number)
	if !ok {
		return 0, false
	}
	if neg {
		return -tok.Num, true
	}
	return tok.Num, true
}

func (p *parser) parseComputed() spec.ComputedField {
	var c spec.ComputedField
	name, ok := p.expect(lexer.Ident)
	if !ok {
		return c
	}
	c.Name = name.Lexeme
	if _, ok := p.expect(lexer.Colon); !ok {
		return c
	}
	c.Type = p.parseType()
	if _, ok := p.expect(lexer.Assign); !ok {
		return c
	}
	c.Expr = p.parseExpr()
	c.Span = name.Span.Join(p.prevSpan(name.Span))
	return c
}

func (p *parser) parseEvent() spec.EventDef {
	var ev spec.EventDef
	kind, ok := p.expect(lexer.Ident)
	if !ok {
		return ev
	}
	ev.Kind = spec.EventKind(kind.Lexeme)
	if _, ok := p.expect(lexer.LParen); !ok {
		return ev
	}
	param, ok := p.expect(lexer.Ident)
	if !ok {
		return ev
	}
	ev.Param = param.Lexeme
	if _, ok := p.expect(lexer.RParen); !ok {
		return ev
	}
	if _, ok := p.expect(lexer.Arrow); !ok {
		return ev
	}
	ev.Body = p.parseExpr()
	ev.Span = kind.Span.Join(p.prevSpan(kind.Span))
	return ev
}

func (p *parser) parseConstraint() spec.ConstraintDef {
	var c spec.ConstraintDef
	kw, ok := p.expect(lexer.Ident)
	if !ok {
		return c
	}
	switch kw.Lexeme {
	case "assert":
		c.Kind = spec.Assert
	case "ensure":
		c.Kind = spec.Ensure
	default:
		p.diags = append(p.diags, diag.Diagnostic{
			Kind:    diag.Syntax,
			Message: fmt.Sprintf("constraint must start with assert or ensure, got %q", kw.Lexeme),
			Span:    kw.Span,
		})
		return c
	}
	c.Predicate = p.parseExpr()
	if _, ok := p.accept(lexer.Colon); ok {
		if msg, ok := p.expect(lexer.String); ok {
			c.Message = msg.Str
		}
	}
	c.Span = kw.Span.Join(p.prevSpan(kw.Span))
	return c
}

func (p *parser) parseLifecycle() spec.LifecycleDef {
	var lc spec.LifecycleDef
	kw, ok := p.expect(lexer.Ident)
	if !ok {
		return lc
	}
	switch kw.Lexeme {
	case "before":
		lc.Phase = spec.Before
	case "after":
		lc.Phase = spec.After
	case "finally":
		lc.Phase = spec.Finally
	default:
		p.diags = append(p.diags, diag.Diagnostic{
			Kind:    diag.Syntax,
			Message: fmt.Sprintf("lifecycle phase must be before, after, or finally, got %q", kw.Lexeme),
			Span:    kw.Span,
		})
		return lc
	}
	if _, ok := p.expect(lexer.Arrow); !ok {
		return lc
	}
	lc.Body = p.parseExpr()
	lc.Span = kw.Span.Join(p.prevSpan(kw.Span))
	return lc
}

func (p *parser) parseExtension() spec.ExtensionDef {
	var e spec.ExtensionDef
	alias, ok := p.expect(lexer.Ident)
	if !ok {
		return e
	}
	e.Alias = alias.Lexeme
	if _, ok := p.expect(lexer.Colon); !ok {
		return e
	}
	ref, ok := p.expect(lexer.String)
	if !ok {
		return e
	}
	e.Name = ref.Str
	if i := strings.IndexByte(ref.Str, '@'); i >= 0 {
		e.Name = ref.Str[:i]
		e.Ver = ref.Str[i+1:]
	}
	e.Span = alias.Span.Join(ref.Span)
	return e
}

func (p *parser) parseTypeDef() spec.TypeDef {
	var td spec.TypeDef
	name, ok := p.expect(lexer.Ident)
	if !ok {
		return td
	}
	td.Name = name.Lexeme
	if _, ok := p.expect(lexer.Colon); !ok {
		return td
	}
	td.Type = p.parseType()
	td.Span = name.Span.Join(p.prevSpan(name.Span))
	return td
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (p *parser) parseType() spec.TypeExpr {
	tok, ok := p.expect(lexer.Ident)
	if !ok {
		return spec.TypeExpr{}
	}
	switch tok.Lexeme {
	case "string", "int", "float", "bool", "null":
		return spec.Primitive(spec.PrimType(tok.Lexeme))
	case "prompt":
		return spec.TypeExpr{Kind: spec.TypePrompt}
	case "text":
		// text.generate sentinel
		if _, ok := p.accept(lexer.Dot); ok {
			gen, ok := p.expect(lexer.Ident)
			if ok && gen.Lexeme == "generate" {
				return spec.TypeExpr{Kind: spec.TypeTextGenerate}
			}
			p.diags = append(p.diags, diag.Diagnostic{
				Kind: diag.Syntax, Message: "expected text.generate", Span: tok.Span,
			})
			return spec.TypeExpr{}
		}
		return spec.TypeExpr{Kind: spec.TypeRef, Path: tok.Lexeme}
	case "list":
		if _, ok := p.expect(lexer.Lt); !ok {
			return spec.TypeExpr{}
		}
		elem := p.parseType()
		p.expect(lexer.Gt)
		return spec.TypeExpr{Kind: spec.TypeList, Args: []spec.TypeExpr{elem}}
	case "map":
		if _, ok := p.expect(lexer.Lt); !ok {
			return spec.TypeExpr{}
		}
		k := p.parseType()
		p.expect(lexer.Comma)
		v := p.parseType()
		p.expect(lexer.Gt)
		return spec.TypeExpr{Kind: spec.TypeMap, Args: []spec.TypeExpr{k, v}}
	case "enum":
		if _, ok := p.expect(lexer.LParen); !ok {
			return spec.TypeExpr{}
		}
		var values []string
		for !p.at(lexer.RParen) && !p.at(lexer.EOF) {
			v, ok := p.expect(lexer.String)
			if !ok {
				return spec.TypeExpr{}
			}
			values = append(values, v.Str)
			if _, ok := p.accept(lexer.Comma); !ok {
				break
			}
		}
		p.expect(lexer.RParen)
		return spec.TypeExpr{Kind: spec.TypeEnum, Values: values}
	case "union":
		if _, ok := p.expect(lexer.LParen); !ok {
			return spec.TypeExpr{}
		}
		var args []spec.TypeExpr
		for !p.at(lexer.RParen) && !p.at(lexer.EOF) {
			args = append(args, p.parseType())
			if _, ok := p.accept(lexer.Comma); !ok {
				break
			}
		}
		p.expect(lexer.RParen)
		return spec.TypeExpr{Kind: spec.TypeUnion, Args: args}
	case "struct":
		if _, ok := p.expect(lexer.LBrace); !ok {
			return spec.TypeExpr{}
		}
		var fields []spec.StructField
		for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
			name, ok := p.expect(lexer.Ident)
			if !ok {
				return spec.TypeExpr{}
			}
			if _, ok := p.expect(lexer.Colon); !ok {
				return spec.TypeExpr{}
			}
			fields = append(fields, spec.StructField{Name: name.Lexeme, Type: p.parseType()})
			p.accept(lexer.Comma)
		}
		p.expect(lexer.RBrace)
		return spec.TypeExpr{Kind: spec.TypeStruct, Fields: fields}
	case "ref":
		if _, ok := p.expect(lexer.LParen); !ok {
			return spec.TypeExpr{}
		}
		path := p.parseDottedPath()
		p.expect(lexer.RParen)
		return spec.TypeExpr{Kind: spec.TypeRef, Path: path}
	default:
		// Named user type, possibly dotted.
		path := tok.Lexeme
		for p.at(lexer.Dot) {
			p.advance()
			part, ok := p.expect(lexer.Ident)
			if !ok {
				break
			}
			path += "." + part.Lexeme
		}
		return spec.TypeExpr{Kind: spec.TypeRef, Path: path}
	}
}

func (p *parser) parseDottedPath() string {
	tok, ok := p.expect(lexer.Ident)
	if !ok {
		return ""
	}
	path := tok.Lexeme
	for p.at(lexer.Dot) {
		p.advance()
		part, ok := p.expect(lexer.Ident)
		if !ok {
			break
		}
		path += "." + part.Lexeme
	}
	return path
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *parser) parseExpr() spec.Expr {
	return p.parseConditional()
}

// parseConditional handles cond ? a : b with right-associative chaining.
func (p *parser) parseConditional() spec.Expr {
	cond := p.parseOr()
	if cond == nil {
		return nil
	}
	if _, ok := p.accept(lexer.Question); !ok {
		return cond
	}
	then := p.parseExpr()
	if _, ok := p.expect(lexer.Colon); !ok {
		return cond
	}
	els := p.parseConditional()
	if then == nil || els == nil {
		return cond
	}
	return &spec.Conditional{Cond: cond, Then: then, Else: els, S: cond.Span().Join(els.Span())}
}

func (p *parser) parseOr() spec.Expr {
	left := p.parseAnd()
	for left != nil {
		if _, ok := p.accept(lexer.OrOr); !ok {
			return left
		}
		right := p.parseAnd()
		if right == nil {
			return left
		}
		left = &spec.Binary{Op: spec.OpOr, L: left, R: right, S: left.Span().Join(right.Span())}
	}
	return left
}

func (p *parser) parseAnd() spec.Expr {
	left := p.parseEquality()
	for left != nil {
		if _, ok := p.accept(lexer.AndAnd); !ok {
			return left
		}
		right := p.parseEquality()
		if right == nil {
			return left
		}
		left = &spec.Binary{Op: spec.OpAnd, L: left, R: right, S: left.Span().Join(right.Span())}
	}
	return left
}

var equalityOps = map[lexer.Type]spec.BinOp{lexer.EqEq: spec.OpEq, lexer.Ne: spec.OpNe}

var comparisonOps = map[lexer.Type]spec.BinOp{
	lexer.Lt: spec.OpLt, lexer.Le: spec.OpLe, lexer.Gt: spec.OpGt, lexer.Ge: spec.OpGe,
}

var additiveOps = map[lexer.Type]spec.BinOp{lexer.Plus: spec.OpAdd, lexer.Minus: spec.OpSub}

var multiplicativeOps = map[lexer.Type]spec.BinOp{
	lexer.Star: spec.OpMul, lexer.Slash: spec.OpDiv, lexer.Percent: spec.OpMod,
}

func (p *parser) parseBinary(ops map[lexer.Type]spec.BinOp, next func() spec.Expr) spec.Expr {
	left := next()
	for left != nil {
		op, ok := ops[p.peek().Type]
		if !ok {
			return left
		}
		p.advance()
		right := next()
		if right == nil {
			return left
		}
		left = &spec.Binary{Op: op, L: left, R: right, S: left.Span().Join(right.Span())}
	}
	return left
}

func (p *parser) parseEquality() spec.Expr {
	return p.parseBinary(equalityOps, p.parseComparison)
}

func (p *parser) parseComparison() spec.Expr {
	return p.parseBinary(comparisonOps, p.parseAdditive)
}

func (p *parser) parseAdditive() spec.Expr {
	return p.parseBinary(additiveOps, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() spec.Expr {
	return p.parseBinary(multiplicativeOps, p.parseUnary)
}

func (p *parser) parseUnary() spec.Expr {
	if bang, ok := p.accept(lexer.Bang); ok {
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &spec.Unary{X: x, S: bang.Span.Join(x.Span())}
	}
	if minus, ok := p.accept(lexer.Minus); ok {
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		// Fold a negated number literal; otherwise desugar to 0 - x.
		if lit, ok := x.(*spec.Lit); ok {
			if n, isNum := lit.Val.AsNumber(); isNum {
				return &spec.Lit{Val: value.Number(-n), S: minus.Span.Join(x.Span())}
			}
		}
		zero := &spec.Lit{Val: value.Number(0), S: minus.Span}
		return &spec.Binary{Op: spec.OpSub, L: zero, R: x, S: minus.Span.Join(x.Span())}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() spec.Expr {
	e := p.parsePrimary()
	for e != nil {
		switch {
		case p.at(lexer.Dot):
			p.advance()
			name, ok := p.expect(lexer.Ident)
			if !ok {
				return e
			}
			// alias.method(...) is a plugin call when the receiver is a bare
			// identifier; anything else is property access.
			if p.at(lexer.LParen) {
				if id, isIdent := e.(*spec.Ident); isIdent {
					args, end := p.parseArgs()
					e = &spec.Call{Object: id.Name, Method: name.Lexeme, Args: args, S: id.S.Join(end)}
					continue
				}
				p.diags = append(p.diags, diag.Diagnostic{
					Kind:    diag.Syntax,
					Message: "method calls require a plugin alias or builtin name",
					Span:    name.Span,
				})
				return e
			}
			e = &spec.Property{X: e, Name: name.Lexeme, S: e.Span().Join(name.Span)}
		case p.at(lexer.LBracket):
			p.advance()
			key := p.parseExpr()
			end, ok := p.expect(lexer.RBracket)
			if !ok || key == nil {
				return e
			}
			e = &spec.Index{X: e, Key: key, S: e.Span().Join(end.Span)}
		case p.at(lexer.LParen):
			// name(...) is a builtin call.
			id, isIdent := e.(*spec.Ident)
			if !isIdent {
				p.errorExpected("operator")
				return e
			}
			args, end := p.parseArgs()
			e = &spec.Call{Object: spec.BuiltinObject, Method: id.Name, Args: args, S: id.S.Join(end)}
		default:
			return e
		}
	}
	return e
}

// parseArgs parses a parenthesized argument list: positional arguments first,
// then named arguments, never interleaved out of order.
func (p *parser) parseArgs() ([]spec.Argument, diag.Span) {
	open, _ := p.expect(lexer.LParen)
	var args []spec.Argument
	sawNamed := false
	for !p.at(lexer.RParen) && !p.at(lexer.EOF) {
		var arg spec.Argument
		if p.at(lexer.Ident) && p.peek2().Type == lexer.Colon {
			name := p.advance()
			p.advance() // colon
			arg.Name = name.Lexeme
			arg.Val = p.parseExpr()
			if arg.Val == nil {
				return args, open.Span
			}
			arg.S = name.Span.Join(arg.Val.Span())
			sawNamed = true
		} else {
			arg.Val = p.parseExpr()
			if arg.Val == nil {
				return args, open.Span
			}
			arg.S = arg.Val.Span()
			if sawNamed {
				p.diags = append(p.diags, diag.Diagnostic{
					Kind:    diag.Syntax,
					Message: "positional argument after named argument",
					Span:    arg.S,
				})
			}
		}
		args = append(args, arg)
		if _, ok := p.accept(lexer.Comma); !ok {
			break
		}
	}
	end, _ := p.expect(lexer.RParen)
	return args, open.Span.Join(end.Span)
}

func (p *parser) parsePrimary() spec.Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.Number:
		p.advance()
		return &spec.Lit{Val: value.Number(tok.Num), S: tok.Span}
	case lexer.String:
		p.advance()
		return &spec.Lit{Val: value.String(tok.Str), S: tok.Span}
	case lexer.Template:
		p.advance()
		return p.buildTemplate(tok)
	case lexer.Ident:
		p.advance()
		switch tok.Lexeme {
		case "true":
			return &spec.Lit{Val: value.Bool(true), S: tok.Span}
		case "false":
			return &spec.Lit{Val: value.Bool(false), S: tok.Span}
		case "null":
			return &spec.Lit{Val: value.Null(), S: tok.Span}
		}
		return &spec.Ident{Name: tok.Lexeme, S: tok.Span}
	case lexer.LParen:
		p.advance()
		e := p.parseExpr()
		p.expect(lexer.RParen)
		return e
	default:
		p.errorExpected("expression")
		return nil
	}
}

// buildTemplate reparses each interpolation with its original byte offset so
// inner spans still point into the source document.
func (p *parser) buildTemplate(tok lexer.Token) spec.Expr {
	tpl := &spec.Template{S: tok.Span}
	for _, part := range tok.Parts {
		if !part.IsExpr {
			tpl.Parts = append(tpl.Parts, spec.TemplatePart{Text: part.Text})
			continue
		}
		inner, ds := parseExprAt(part.ExprSrc, part.ExprOff)
		if ds != nil {
			p.diags = append(p.diags, ds...)
			continue
		}
		tpl.Parts = append(tpl.Parts, spec.TemplatePart{Expr: inner, S: inner.Span()})
	}
	return tpl
}
