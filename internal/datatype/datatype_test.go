package datatype

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultRegistryBuiltins(t *testing.T) {
	gender, err := Lookup("gender")
	if err != nil {
		t.Fatalf("lookup gender: %v", err)
	}
	if !gender.HasAllowedValues() || len(gender.AllowedValues()) != 2 {
		t.Fatalf("expected two gender values, got %+v", gender.AllowedValues())
	}
	female, ok := gender.Value("Women")
	if !ok || female.ID != "female" {
		t.Fatalf("expected lookup by label, got %+v %v", female, ok)
	}
	if code, ok := gender.Translate("female", "scb"); !ok || code != "2" {
		t.Fatalf("expected scb code 2, got %q %v", code, ok)
	}
	if _, ok := gender.Translate("female", "unknown"); ok {
		t.Fatalf("expected no mapping for unknown dialect")
	}
	year, err := Lookup("year")
	if err != nil {
		t.Fatalf("lookup year: %v", err)
	}
	if year.HasAllowedValues() {
		t.Fatalf("year must not restrict values")
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("no-such-type"); !errors.Is(err, ErrUnknownDatatype) {
		t.Fatalf("expected ErrUnknownDatatype, got %v", err)
	}
}

func TestRegistryLoadValidation(t *testing.T) {
	reg := NewRegistry()
	doc := `datatypes:
  - name: flag
    values:
      - id: yes
      - id: yes
`
	if err := reg.Load(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected duplicate value error")
	}
	if err := reg.Register(&Datatype{}); err == nil {
		t.Fatalf("expected missing name error")
	}
	if err := reg.Load(strings.NewReader("datatypes: [")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAllowedValuesAreCopies(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&Datatype{Name: "color", Values: []Value{{ID: "red", Dialects: map[string]string{"hex": "#f00"}}}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	dt, _ := reg.Lookup("color")
	values := dt.AllowedValues()
	values[0].Dialects["hex"] = "mutated"
	if code, _ := dt.Translate("red", "hex"); code != "#f00" {
		t.Fatalf("registry mutated through copy: %q", code)
	}
	if values[0].Label != "red" {
		t.Fatalf("expected label default to id, got %q", values[0].Label)
	}
	if got := dt.Dialects(); len(got) != 1 || got[0] != "hex" {
		t.Fatalf("unexpected dialects %v", got)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "color" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestCloneIsolatesRegistrations(t *testing.T) {
	clone := Default().Clone()
	if err := clone.Register(&Datatype{Name: "only-in-clone"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := Default().Lookup("only-in-clone"); !errors.Is(err, ErrUnknownDatatype) {
		t.Fatalf("registration leaked into the default registry")
	}
	if _, err := clone.Lookup("gender"); err != nil {
		t.Fatalf("builtins missing from clone: %v", err)
	}
}
