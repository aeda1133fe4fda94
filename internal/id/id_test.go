package id

import (
	"strings"
	"testing"
)

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		v, err := Generate(Message)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[v] {
			t.Fatalf("duplicate id %s", v)
		}
		seen[v] = true
	}
}

func TestGenerate_FormatAndValid(t *testing.T) {
	for _, p := range []string{Listing, Transaction, Chat, Message, Notification} {
		v := MustGenerate(p)
		if !strings.HasPrefix(v, p+"-") {
			t.Fatalf("%q missing prefix %q", v, p)
		}
		if len(v) != len(p)+1+21 {
			t.Fatalf("%q unexpected length %d", v, len(v))
		}
		if !Valid(p, v) {
			t.Fatalf("Valid(%q, %q) = false", p, v)
		}
	}
}

func TestValid_Rejects(t *testing.T) {
	good := MustGenerate(Chat)
	cases := []struct {
		prefix, in string
	}{
		{Chat, ""},
		{Chat, "chat-"},
		{Chat, "chat-short"},
		{Listing, good},                           // wrong prefix
		{Chat, good + "x"},                        // too long
		{Chat, "chat-" + strings.Repeat("!", 21)}, // bad alphabet
	}
	for _, tc := range cases {
		if Valid(tc.prefix, tc.in) {
			t.Fatalf("Valid(%q, %q) = true; want false", tc.prefix, tc.in)
		}
	}
}
