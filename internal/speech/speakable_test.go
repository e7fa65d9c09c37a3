package speech

import "testing"

func TestSpeakable(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello there.", "Hello there."},
		{"markdown", "I **really** like `code` and [links](https://x.dev)!", "I really like and links!"},
		{"fenced code", "Look:\n```go\nfmt.Println(1)\n```\nDone.", "Look: Done."},
		{"url", "See https://example.com/a?b=c now", "See now"},
		{"stage direction", "*giggles* Of course I remember!", "Of course I remember!"},
		{"emoji", "Great ✨ plan 🚀!", "Great plan !"},
		{"whitespace collapse", "a\n\n\t  b", "a b"},
		{"empty", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Speakable(tc.in); got != tc.want {
				t.Fatalf("Speakable(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
