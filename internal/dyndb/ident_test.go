package dyndb

import (
	"errors"
	"testing"
)

func TestSafeIdent_Accepts(t *testing.T) {
	for _, name := range []string{"customers", "claim_2024", "A", "_x", "T1_b"} {
		got, err := SafeIdent(name)
		if err != nil {
			t.Fatalf("SafeIdent(%q): unexpected error %v", name, err)
		}
		if got != name {
			t.Fatalf("SafeIdent(%q) = %q, want unchanged", name, got)
		}
	}
}

func TestSafeIdent_Rejects(t *testing.T) {
	cases := []string{
		"",
		"users; DROP TABLE users",
		"users--",
		"a.b",
		"col name",
		`"quoted"`,
		"tab\tname",
		"üser",
	}
	for _, name := range cases {
		_, err := SafeIdent(name)
		if err == nil {
			t.Fatalf("SafeIdent(%q): expected error, got none", name)
		}
		var identErr *InvalidIdentifierError
		if !errors.As(err, &identErr) {
			t.Fatalf("SafeIdent(%q): expected InvalidIdentifierError, got %T", name, err)
		}
	}
}

func TestSafeIdents_FailsOnFirstBad(t *testing.T) {
	_, err := SafeIdents([]string{"ok", "not ok", "also_ok"})
	if err == nil {
		t.Fatal("expected error for list containing a bad identifier")
	}
}
