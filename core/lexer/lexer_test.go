package lexer_test

import (
	"testing"

	"github.com/sigmos-lang/sigmos/core/lexer"
	"github.com/sigmos-lang/sigmos/domain/diag"
)

func lex(t *testing.T, src string) []lexer.Token {
	t.Helper()
	toks, ds := lexer.New(src).Lex()
	if ds != nil {
		t.Fatalf("lex %q: %v", src, ds)
	}
	return toks
}

func types(toks []lexer.Token) []lexer.Type {
	out := make([]lexer.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestLex_Operators(t *testing.T) {
	toks := lex(t, "+ - * / % == != < <= > >= && || ! ? : -> = . ;")
	want := []lexer.Type{
		lexer.Plus, lexer.Minus, lexer.Star, lexer.Slash, lexer.Percent,
		lexer.EqEq, lexer.Ne, lexer.Lt, lexer.Le, lexer.Gt, lexer.Ge,
		lexer.AndAnd, lexer.OrOr, lexer.Bang, lexer.Question, lexer.Colon,
		lexer.Arrow, lexer.Assign, lexer.Dot, lexer.Semicolon, lexer.EOF,
	}
	got := types(toks)
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLex_NumbersAndSpans(t *testing.T) {
	toks := lex(t, "  3.25 10")
	if toks[0].Num != 3.25 {
		t.Errorf("num = %v", toks[0].Num)
	}
	if toks[0].Span != (diag.Span{Start: 2, End: 6}) {
		t.Errorf("span = %v", toks[0].Span)
	}
	if toks[1].Num != 10 {
		t.Errorf("num = %v", toks[1].Num)
	}
}

func TestLex_StringEscapes(t *testing.T) {
	toks := lex(t, `"a\n\t\"\\A"`)
	if toks[0].Type != lexer.String {
		t.Fatalf("type = %v", toks[0].Type)
	}
	if toks[0].Str != "a\n\t\"\\A" {
		t.Errorf("str = %q", toks[0].Str)
	}
}

func TestLex_SingleQuoted(t *testing.T) {
	toks := lex(t, `'hi there'`)
	if toks[0].Type != lexer.String || toks[0].Str != "hi there" {
		t.Errorf("got %v %q", toks[0].Type, toks[0].Str)
	}
}

func TestLex_TemplateParts(t *testing.T) {
	toks := lex(t, "`Hello, ${who}! You are ${age + 1}.`")
	if toks[0].Type != lexer.Template {
		t.Fatalf("type = %v", toks[0].Type)
	}
	parts := toks[0].Parts
	if len(parts) != 5 {
		t.Fatalf("parts = %d: %+v", len(parts), parts)
	}
	if parts[0].Text != "Hello, " || parts[1].ExprSrc != "who" || parts[2].Text != "! You are " {
		t.Errorf("unexpected parts: %+v", parts)
	}
	if parts[3].ExprSrc != "age + 1" {
		t.Errorf("expr = %q", parts[3].ExprSrc)
	}
	if parts[1].ExprOff != 10 {
		t.Errorf("expr offset = %d, want 10", parts[1].ExprOff)
	}
}

func TestLex_DoubleQuotedInterpolation(t *testing.T) {
	toks := lex(t, `"Hi ${name}"`)
	if toks[0].Type != lexer.Template {
		t.Fatalf("double-quoted interpolation should lex as template, got %v", toks[0].Type)
	}
}

func TestLex_NestedTemplateInInterpolation(t *testing.T) {
	toks := lex(t, "`a${ `b${c}` }d`")
	if toks[0].Type != lexer.Template {
		t.Fatalf("type = %v", toks[0].Type)
	}
	if len(toks[0].Parts) != 3 {
		t.Fatalf("parts: %+v", toks[0].Parts)
	}
	if toks[0].Parts[1].ExprSrc != " `b${c}` " {
		t.Errorf("inner = %q", toks[0].Parts[1].ExprSrc)
	}
}

func TestLex_Comments(t *testing.T) {
	toks := lex(t, "a // line\nb /* outer /* nested */ still */ c")
	got := types(toks)
	want := []lexer.Type{lexer.Ident, lexer.Ident, lexer.Ident, lexer.EOF}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v", got)
	}
}

func TestLex_Errors(t *testing.T) {
	tests := []struct {
		src  string
		kind diag.Kind
	}{
		{`"unterminated`, diag.UnterminatedString},
		{"`unterminated", diag.UnterminatedString},
		{`"bad \q escape"`, diag.InvalidEscape},
		{`"bad \u00zz"`, diag.InvalidEscape},
		{"1e+", diag.InvalidNumber},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, ds := lexer.New(tt.src).Lex()
			if ds == nil {
				t.Fatalf("expected diagnostics for %q", tt.src)
			}
			found := false
			for _, d := range ds {
				if d.Kind == tt.kind {
					found = true
				}
			}
			if !found {
				t.Errorf("want kind %s in %v", tt.kind, ds)
			}
		})
	}
}
