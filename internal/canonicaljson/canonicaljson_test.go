package canonicaljson

import (
	"testing"
)

func TestMarshalOrderIndependent(t *testing.T) {
	a, err := Decode([]byte(`{"payment_id":"PAY-1","actually_paid":100.5,"nested":{"b":1,"a":[3,{"y":true,"x":null}]}}`))
	if err != nil {
		t.Fatalf("decode a: %v", err)
	}
	b, err := Decode([]byte(`{ "nested" : { "a" : [3, {"x": null, "y": true}], "b": 1 }, "actually_paid": 100.50, "payment_id": "PAY-1" }`))
	if err != nil {
		t.Fatalf("decode b: %v", err)
	}

	outA, err := Marshal(a)
	if err != nil {
		t.Fatalf("marshal a: %v", err)
	}
	outB, err := Marshal(b)
	if err != nil {
		t.Fatalf("marshal b: %v", err)
	}
	if string(outA) != string(outB) {
		t.Fatalf("expected identical output\n%s\n%s", outA, outB)
	}

	want := `{"actually_paid":100.5,"nested":{"a":[3,{"x":null,"y":true}],"b":1},"payment_id":"PAY-1"}`
	if string(outA) != want {
		t.Fatalf("unexpected canonical form\nwant %s\ngot  %s", want, outA)
	}
}

func TestMarshalIdempotent(t *testing.T) {
	v, err := Decode([]byte(`{"z":[1,2,{"k":"v"}],"a":"x"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	first, _ := Marshal(v)
	again, err := Decode(first)
	if err != nil {
		t.Fatalf("decode canonical: %v", err)
	}
	second, _ := Marshal(again)
	if string(first) != string(second) {
		t.Fatalf("canonicalization not idempotent: %s vs %s", first, second)
	}
}

func TestMarshalTotal(t *testing.T) {
	cases := map[string]any{
		"null":  nil,
		"{}":    map[string]any{},
		"[]":    []any{},
		"true":  true,
		`""`:    "",
		"0":     float64(0),
		"[null]": []any{nil},
	}
	for want, in := range cases {
		out, err := Marshal(in)
		if err != nil {
			t.Fatalf("marshal %s: %v", want, err)
		}
		if string(out) != want {
			t.Fatalf("expected %s, got %s", want, out)
		}
	}
}

func TestMarshalNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100.50", "100.5"},
		{"1.0", "1"},
		{"-0", "0"},
		{"0.000001", "0.000001"},
		{"0.0000001", "1e-7"},
		{"1e21", "1e+21"},
		{"123456789012345678", "123456789012345680"},
		{"0.1", "0.1"},
		{"2.5e-3", "0.0025"},
	}
	for _, tc := range cases {
		v, err := Decode([]byte(tc.in))
		if err != nil {
			t.Fatalf("decode %s: %v", tc.in, err)
		}
		out, err := Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.in, err)
		}
		if string(out) != tc.want {
			t.Fatalf("number %s: want %s, got %s", tc.in, tc.want, out)
		}
	}
}

func TestMarshalStringEscaping(t *testing.T) {
	in := map[string]any{"s": "quote\" slash\\ tab\t nl\n ctl\x01 html<>& unicode é  "}
	out, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "{\"s\":\"quote\\\" slash\\\\ tab\\t nl\\n ctl\\u0001 html<>& unicode é  \"}"
	if string(out) != want {
		t.Fatalf("unexpected escaping\nwant %s\ngot  %s", want, out)
	}
}

func TestSortedKeysUsesUTF16Order(t *testing.T) {
	// U+FF5E precedes U+1F600 by code point but follows its surrogate pair in UTF-16.
	m := map[string]any{"\U0001F600": 1, "～": 2, "B": 3, "a": 4, "_": 5}
	got := SortedKeys(m)
	want := []string{"B", "_", "a", "\U0001F600", "～"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: want %q, got %q (all %q)", i, want[i], got[i], got)
		}
	}
}

func TestMarshalNormalizesGoValues(t *testing.T) {
	type payload struct {
		PaymentID string  `json:"payment_id"`
		Amount    float64 `json:"actually_paid"`
	}
	out, err := Marshal(payload{PaymentID: "PAY-1", Amount: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"actually_paid":2,"payment_id":"PAY-1"}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	if _, err := Decode([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}
