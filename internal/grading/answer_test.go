package grading

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
		text string
		list []string
	}{
		{name: "empty input", raw: ``, kind: KindEmpty},
		{name: "null", raw: `null`, kind: KindEmpty},
		{name: "blank string", raw: `"   "`, kind: KindEmpty},
		{name: "empty array", raw: `[]`, kind: KindEmpty},
		{name: "string", raw: `"B"`, kind: KindScalar, text: "B"},
		{name: "number", raw: `42`, kind: KindScalar, text: "42"},
		{name: "negative float", raw: `-1.5`, kind: KindScalar, text: "-1.5"},
		{name: "bool", raw: `true`, kind: KindScalar, text: "true"},
		{name: "mixed array", raw: `["a", 1, false]`, kind: KindList, list: []string{"a", "1", "false"}},
		{name: "wrapped value", raw: `{"selected": "C"}`, kind: KindScalar, text: "C"},
		{name: "unknown object", raw: `{"foo": 1}`, kind: KindUnparseable},
		{name: "nested array", raw: `[[1,2]]`, kind: KindUnparseable},
		{name: "invalid json", raw: `{"selected":`, kind: KindUnparseable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(json.RawMessage(tc.raw))
			if got.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.kind)
			}
			if tc.kind == KindScalar && got.Text != tc.text {
				t.Errorf("text = %q, want %q", got.Text, tc.text)
			}
			if tc.kind == KindList && !reflect.DeepEqual(got.Items, tc.list) {
				t.Errorf("items = %v, want %v", got.Items, tc.list)
			}
		})
	}
}

func TestAnswerList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
		ok   bool
	}{
		{name: "json array", raw: `["a","b"]`, want: []string{"a", "b"}, ok: true},
		{name: "json array in string", raw: `"[\"a\",\"b\"]"`, want: []string{"a", "b"}, ok: true},
		{name: "delimited string", raw: `"a||b"`, want: []string{"a", "b"}, ok: true},
		{name: "plain scalar", raw: `"a"`, want: []string{"a"}, ok: true},
		{name: "empty", raw: `null`, ok: false},
		{name: "unparseable", raw: `{"x":1}`, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Parse(json.RawMessage(tc.raw)).List()
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && !reflect.DeepEqual(got, tc.want) {
				t.Errorf("list = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	if got := Parse(json.RawMessage(`"  Hello   World "`)).Canonical(); got != "hello world" {
		t.Errorf("scalar canonical = %q", got)
	}
	if got := Parse(json.RawMessage(`["B", " a "]`)).Canonical(); got != `["b","a"]` {
		t.Errorf("list canonical = %q", got)
	}
	if got := Parse(json.RawMessage(`null`)).Canonical(); got != "" {
		t.Errorf("empty canonical = %q", got)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{name: "nfc vs nfd", a: "caf\u00e9", b: "cafe\u0301"},
		{name: "surrounding whitespace", a: "  Paris\t", b: "paris"},
		{name: "internal whitespace", a: "New   York", b: "new york"},
		{name: "case folding", a: "STRASSE", b: "strasse"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if NormalizeText(tc.a) != NormalizeText(tc.b) {
				t.Errorf("NormalizeText(%q) = %q, NormalizeText(%q) = %q", tc.a, NormalizeText(tc.a), tc.b, NormalizeText(tc.b))
			}
		})
	}
}
