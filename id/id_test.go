package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/turnstile/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"PrincipalID", id.NewPrincipalID, "prin_"},
		{"SessionID", id.NewSessionID, "sess_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixPrincipal)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixPrincipal {
		t.Errorf("expected prefix %q, got %q", id.PrefixPrincipal, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewPrincipalID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip: got %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not a typeid"},
		{"bad suffix", "prin_!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("Parse(%q): expected error", tt.input)
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	prin := id.NewPrincipalID()

	if _, err := id.ParsePrincipalID(prin.String()); err != nil {
		t.Fatalf("ParsePrincipalID: %v", err)
	}
	if _, err := id.ParseSessionID(prin.String()); err == nil {
		t.Error("ParseSessionID accepted a principal ID")
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil String: got %q, want empty", nilID.String())
	}
	if nilID.Prefix() != "" {
		t.Errorf("nil Prefix: got %q, want empty", nilID.Prefix())
	}
}

func TestTextMarshaling(t *testing.T) {
	orig := id.NewSessionID()

	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var parsed id.ID
	if err := parsed.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip: got %q, want %q", parsed.String(), orig.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil): %v", err)
	}
	if !empty.IsNil() {
		t.Error("unmarshaling empty text should yield Nil")
	}
}

func TestSQLScan(t *testing.T) {
	orig := id.NewPrincipalID()

	var fromString id.ID
	if err := fromString.Scan(orig.String()); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if fromString.String() != orig.String() {
		t.Errorf("Scan(string): got %q, want %q", fromString.String(), orig.String())
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(orig.String())); err != nil {
		t.Fatalf("Scan([]byte): %v", err)
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) should yield Nil")
	}

	var fromInt id.ID
	if err := fromInt.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
