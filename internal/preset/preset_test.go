package preset

import (
	"errors"
	"testing"

	"albumvideo/internal/services"
)

// lacksCapability satisfies Preset but not VideoArgsBuilder.
type lacksCapability struct{}

func (lacksCapability) Name() string        { return "broken" }
func (lacksCapability) Description() string { return "no builder" }

type customPreset struct{}

func (customPreset) Name() string        { return "custom" }
func (customPreset) Description() string { return "test preset" }
func (customPreset) VideoArgs() []string { return []string{"-c:v", "libvpx-vp9"} }

func TestBuiltinsRegistered(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	if len(names) != 2 || names[0] != "default" || names[1] != "hevc" {
		t.Fatalf("names = %v", names)
	}

	p, err := r.Lookup("")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if p.Name() != DefaultName {
		t.Fatalf("empty name resolved to %q", p.Name())
	}
	if args := VideoArgs(p); len(args) == 0 {
		t.Fatal("default preset produced no video args")
	}
}

func TestRegisterRejectsMissingCapability(t *testing.T) {
	r := NewRegistry()
	err := r.Register(lacksCapability{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
	if _, err := r.Lookup("broken"); err == nil {
		t.Fatal("rejected preset must not be selectable")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(customPreset{}); err != nil {
		t.Fatalf("register custom: %v", err)
	}
	if err := r.Register(customPreset{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("duplicate register: got %v", err)
	}
}

func TestLookupUnknownPreset(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("does-not-exist")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}
