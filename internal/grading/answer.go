package grading

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the shape of a parsed answer value.
type Kind int

const (
	KindEmpty Kind = iota
	KindScalar
	KindList
	KindUnparseable
)

// listDelimiter is the fallback separator for list answers sent as one string.
const listDelimiter = "||"

// wrapperKeys are the object keys unwrapped when an answer arrives as {"value": x}.
var wrapperKeys = []string{"value", "answer", "selected"}

// Answer is a submitted or expected answer after shape detection.
// Exactly one of Text, Items, Raw is meaningful, selected by Kind.
type Answer struct {
	Kind  Kind
	Text  string
	Items []string
	Raw   string
}

// Parse classifies a raw JSON answer value. It never fails: values that do
// not fit a known shape come back as KindUnparseable.
func Parse(raw json.RawMessage) Answer {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return Answer{Kind: KindEmpty}
	}
	if !json.Valid(data) {
		return unparseable(data)
	}

	switch data[0] {
	case 'n':
		return Answer{Kind: KindEmpty}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return unparseable(data)
		}
		return Answer{Kind: KindScalar, Text: strconv.FormatBool(b)}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return unparseable(data)
		}
		return Text(s)
	case '[':
		return parseList(data)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil || len(obj) != 1 {
			return unparseable(data)
		}
		for _, k := range wrapperKeys {
			if v, ok := obj[k]; ok {
				return Parse(v)
			}
		}
		return unparseable(data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return unparseable(data)
		}
		return Answer{Kind: KindScalar, Text: n.String()}
	}
}

// Text wraps a plain string answer.
func Text(s string) Answer {
	if strings.TrimSpace(s) == "" {
		return Answer{Kind: KindEmpty}
	}
	return Answer{Kind: KindScalar, Text: s}
}

func parseList(data []byte) Answer {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return unparseable(data)
	}
	if len(elems) == 0 {
		return Answer{Kind: KindEmpty}
	}
	items := make([]string, 0, len(elems))
	for _, e := range elems {
		el := Parse(e)
		switch el.Kind {
		case KindScalar:
			items = append(items, el.Text)
		case KindEmpty:
			items = append(items, "")
		default:
			// Nested lists and objects have no meaning for any question type.
			return unparseable(data)
		}
	}
	return Answer{Kind: KindList, Items: items}
}

func unparseable(data []byte) Answer {
	return Answer{Kind: KindUnparseable, Raw: string(data)}
}

// Single returns the answer as one value. A one-element list counts as a single value.
func (a Answer) Single() (string, bool) {
	switch a.Kind {
	case KindScalar:
		return a.Text, true
	case KindList:
		if len(a.Items) == 1 {
			return a.Items[0], true
		}
	}
	return "", false
}

// List returns the answer as a list. A scalar is read as a JSON-encoded array
// first, then as a "||"-delimited string, and finally as a one-element list.
func (a Answer) List() ([]string, bool) {
	switch a.Kind {
	case KindList:
		return a.Items, true
	case KindScalar:
		s := strings.TrimSpace(a.Text)
		if strings.HasPrefix(s, "[") {
			if inner := parseList([]byte(s)); inner.Kind == KindList {
				return inner.Items, true
			}
		}
		if strings.Contains(s, listDelimiter) {
			return strings.Split(s, listDelimiter), true
		}
		return []string{a.Text}, true
	}
	return nil, false
}

// Canonical renders the normalized form stored alongside graded results.
func (a Answer) Canonical() string {
	switch a.Kind {
	case KindScalar:
		return NormalizeText(a.Text)
	case KindList:
		out := make([]string, len(a.Items))
		for i, it := range a.Items {
			out[i] = NormalizeText(it)
		}
		b, _ := json.Marshal(out)
		return string(b)
	case KindUnparseable:
		return a.Raw
	}
	return ""
}

// ints converts every item to an integer; any failure rejects the whole list.
func ints(items []string) ([]int, bool) {
	out := make([]int, len(items))
	for i, it := range items {
		n, err := strconv.Atoi(strings.TrimSpace(it))
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
