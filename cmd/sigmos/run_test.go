package main

import (
	"testing"

	"github.com/sigmos-lang/sigmos/domain/value"
)

func TestParseInputValue(t *testing.T) {
	tests := []struct {
		raw  string
		want value.Value
	}{
		{"true", value.Bool(true)},
		{"false", value.Bool(false)},
		{"null", value.Null()},
		{"42", value.Number(42)},
		{"-3.5", value.Number(-3.5)},
		{"hello", value.String("hello")},
		{"2024-01-01", value.String("2024-01-01")},
		{`["a","b"]`, value.Array(value.String("a"), value.String("b"))},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseInputValue(tt.raw)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parse %q = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}

	obj, err := parseInputValue(`{"k": 1}`)
	if err != nil {
		t.Fatalf("object: %v", err)
	}
	o, ok := obj.AsObject()
	if !ok {
		t.Fatalf("kind = %v", obj.Kind())
	}
	if v, _ := o.Get("k"); !v.Equal(value.Number(1)) {
		t.Errorf("k = %v", v)
	}

	if _, err := parseInputValue(`{broken`); err == nil {
		t.Errorf("broken JSON should fail")
	}
}

func TestParseInputFlags(t *testing.T) {
	got, err := parseInputFlags([]string{"a=1", "b=x=y"})
	if err != nil {
		t.Fatal(err)
	}
	if !got["a"].Equal(value.Number(1)) {
		t.Errorf("a = %v", got["a"])
	}
	// Only the first = splits.
	if !got["b"].Equal(value.String("x=y")) {
		t.Errorf("b = %v", got["b"])
	}

	if _, err := parseInputFlags([]string{"noequals"}); err == nil {
		t.Errorf("missing = should fail")
	}
}
