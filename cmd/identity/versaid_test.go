package identity

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDeriveVersaID_Shape(t *testing.T) {
	t.Parallel()

	id, err := DeriveVersaID("0xABC123")
	if err != nil {
		t.Fatalf("DeriveVersaID: %v", err)
	}
	if !LooksLikeVersaID(id) {
		t.Fatalf("unexpected shape: %q", id)
	}
	if len(id) != len("VERSA-")+8 {
		t.Fatalf("unexpected length: %q", id)
	}
}

func TestDeriveVersaID_KnownVector(t *testing.T) {
	t.Parallel()

	// sha256("abc") = ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad
	id, err := DeriveVersaID("ABC")
	if err != nil {
		t.Fatalf("DeriveVersaID: %v", err)
	}
	if id != "VERSA-ba7816bf" {
		t.Fatalf("got %q, want VERSA-ba7816bf", id)
	}
}

func TestDeriveVersaID_CaseInsensitive(t *testing.T) {
	t.Parallel()

	addrs := []string{
		"0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		"0xDEADBEEF",
		"  0xMiXeD  ",
	}
	for _, a := range addrs {
		got, err := DeriveVersaID(a)
		if err != nil {
			t.Fatalf("DeriveVersaID(%q): %v", a, err)
		}
		lower, err := DeriveVersaID(strings.ToLower(a))
		if err != nil {
			t.Fatalf("DeriveVersaID(lower %q): %v", a, err)
		}
		if got != lower {
			t.Fatalf("case sensitivity: %q -> %q vs %q", a, got, lower)
		}
	}
}

func TestDeriveVersaID_Distinct(t *testing.T) {
	t.Parallel()

	seen := make(map[string]string, 500)
	for i := 0; i < 500; i++ {
		addr := fmt.Sprintf("0x%040x", i)
		id, err := DeriveVersaID(addr)
		if err != nil {
			t.Fatalf("DeriveVersaID: %v", err)
		}
		if prev, ok := seen[id]; ok {
			t.Fatalf("collision: %q and %q -> %q", prev, addr, id)
		}
		seen[id] = addr
	}
}

func TestDeriveVersaID_Empty(t *testing.T) {
	t.Parallel()

	for _, a := range []string{"", "   "} {
		_, err := DeriveVersaID(a)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("DeriveVersaID(%q): expected ErrInvalidInput, got %v", a, err)
		}
	}
}

func TestNormalizeVersaID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"VERSA-ba7816bf", "VERSA-ba7816bf"},
		{" versa-BA7816BF ", "VERSA-ba7816bf"},
		{"other", "other"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeVersaID(tc.in); got != tc.want {
			t.Fatalf("NormalizeVersaID(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
