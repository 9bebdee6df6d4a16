package crypto

import (
	"errors"
	"math"
	"testing"
)

func TestCanonicalizeJSON_SortsAndCompacts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "sorted keys", in: `{"b": 2, "a": [1, "x", null, true]}`, want: `{"a":[1,"x",null,true],"b":2}`},
		{name: "nested", in: `{"z":{"y":1,"x":{"b":false,"a":0}}}`, want: `{"z":{"x":{"a":0,"b":false},"y":1}}`},
		{name: "control chars", in: `{"s":"a\u0001b\n"}`, want: `{"s":"a\u0001b\n"}`},
		{name: "unicode kept", in: `{"s":"é"}`, want: `{"s":"é"}`},
		{name: "empty", in: `{}`, want: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.in))
			if err != nil {
				t.Fatalf("canonicalize: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeJSON_Numbers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `100`, want: `100`},
		{in: `1.5`, want: `1.5`},
		{in: `-0`, want: `0`},
		{in: `0.000001`, want: `0.000001`},
		{in: `1e-7`, want: `1e-7`},
		{in: `1e21`, want: `1e+21`},
		{in: `123456789012345678901`, want: `123456789012345680000`},
		{in: `1730854230.123`, want: `1730854230.123`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.in))
			if err != nil {
				t.Fatalf("canonicalize: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeJSON_RejectsTrailingData(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{} {}`))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestCanonicalizeAny_RejectsUnsupportedValues(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "nan", value: math.NaN()},
		{name: "inf", value: math.Inf(1)},
		{name: "channel in map", value: map[string]any{"c": make(chan int)}},
		{name: "func in struct", value: struct{ F func() }{F: func() {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CanonicalizeAny(tt.value); !errors.Is(err, ErrUnsupportedType) {
				t.Fatalf("expected ErrUnsupportedType, got %v", err)
			}
		})
	}
}

func TestCanonicalizeAny_RejectsCycles(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic
	if _, err := CanonicalizeAny(cyclic); err == nil {
		t.Fatal("expected cyclic value to fail")
	}
}

func TestCanonicalizeAny_StructMatchesJSON(t *testing.T) {
	type payload struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	got, err := CanonicalizeAny(payload{B: "x", A: 1})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"a":1,"b":"x"}` {
		t.Fatalf("unexpected canonical form %s", got)
	}
}
