// Package preset holds the encoder preset registry. A preset must expose
// the video-arguments-builder capability to be registered; the contract is
// validated at registration time, not first use.
package preset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"albumvideo/internal/services"
)

// Preset identifies a named encoder configuration.
type Preset interface {
	// Name is the stable registry key, lowercase.
	Name() string
	// Description is shown in the CLI preset listing.
	Description() string
}

// VideoArgsBuilder is the capability every registered preset must carry:
// it yields the ffmpeg video encoding arguments for a render. Audio
// handling is decided per track by the copy-compatibility classifier and
// is not part of the preset.
type VideoArgsBuilder interface {
	VideoArgs() []string
}

// DefaultName is the preset used when a request names none.
const DefaultName = "default"

// Registry maps preset names to validated presets.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

// NewRegistry returns a registry preloaded with the built-in presets.
func NewRegistry() *Registry {
	r := &Registry{presets: make(map[string]Preset)}
	for _, p := range []Preset{h264Preset{}, hevcPreset{}} {
		if err := r.Register(p); err != nil {
			// Built-ins carry the capability by construction.
			panic(err)
		}
	}
	return r
}

// Register validates and stores a preset. A preset lacking the
// video-arguments-builder capability is rejected here so a broken preset
// can never be selected for a render.
func (r *Registry) Register(p Preset) error {
	if p == nil {
		return services.Wrap(services.ErrValidation, "preset", "register", "", errors.New("nil preset"))
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return services.Wrap(services.ErrValidation, "preset", "register", "", errors.New("empty preset name"))
	}
	if _, ok := p.(VideoArgsBuilder); !ok {
		return services.Wrap(services.ErrValidation, "preset", "register",
			"", fmt.Errorf("preset %q does not expose a video args builder", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.presets[name]; exists {
		return services.Wrap(services.ErrValidation, "preset", "register",
			"", fmt.Errorf("preset %q already registered", name))
	}
	r.presets[name] = p
	return nil
}

// Lookup resolves a preset name. An empty name selects the default.
func (r *Registry) Lookup(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "preset", "lookup",
			fmt.Sprintf("known presets: %s", strings.Join(r.namesLocked(), ", ")),
			fmt.Errorf("unknown preset %q", name))
	}
	return p, nil
}

// Names lists registered preset names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VideoArgs extracts the capability from a registered preset. Registration
// guarantees the assertion holds.
func VideoArgs(p Preset) []string {
	return p.(VideoArgsBuilder).VideoArgs()
}

type h264Preset struct{}

func (h264Preset) Name() string        { return DefaultName }
func (h264Preset) Description() string { return "H.264 video, broadly compatible output" }
func (h264Preset) VideoArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
	}
}

type hevcPreset struct{}

func (hevcPreset) Name() string        { return "hevc" }
func (hevcPreset) Description() string { return "H.265 video, smaller files, slower encode" }
func (hevcPreset) VideoArgs() []string {
	return []string{
		"-c:v", "libx265",
		"-preset", "medium",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-tag:v", "hvc1",
	}
}
