package codec

import (
	"fmt"
	"log/slog"
	"strings"
)

// Registry holds the known codecs and selects the best available one.
type Registry struct {
	codecs []Codec
}

// NewRegistry creates a registry. Order is priority: the first available
// codec wins.
func NewRegistry(codecs ...Codec) *Registry {
	return &Registry{codecs: codecs}
}

// Default returns avifenc (at avifencPath, or from PATH) backed by the
// named stand-in ("jpeg" or "webp"). The other stand-in is registered last
// so it can still be picked by name.
func Default(avifencPath, fallback string) *Registry {
	if strings.EqualFold(fallback, "webp") {
		return NewRegistry(NewAvifenc(avifencPath), WebP{}, JPEG{})
	}
	return NewRegistry(NewAvifenc(avifencPath), JPEG{}, WebP{})
}

// Get returns the codec with the given name, or nil if it is unknown or unavailable.
func (r *Registry) Get(name string) Codec {
	for _, c := range r.codecs {
		if strings.EqualFold(c.Name(), name) && c.Available() {
			return c
		}
	}
	return nil
}

// Select returns the first available codec. When it is not the first
// registered one, a warning is logged once per call.
func (r *Registry) Select(logger *slog.Logger) (Codec, error) {
	for i, c := range r.codecs {
		if !c.Available() {
			continue
		}
		if i > 0 && logger != nil {
			logger.Warn("preferred codec unavailable, using stand-in",
				"preferred", r.codecs[0].Name(), "codec", c.Name())
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: none of %s", ErrUnavailable, r)
}

// Pick returns the codec called name, or the Select choice when name is
// empty. A named codec that is unknown or unavailable is an error rather
// than a silent fallback.
func (r *Registry) Pick(name string, logger *slog.Logger) (Codec, error) {
	if name == "" {
		return r.Select(logger)
	}
	if c := r.Get(name); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q is not one of %s or is not installed", ErrUnavailable, name, r)
}

// Available returns the names of all usable codecs in priority order.
func (r *Registry) Available() []string {
	var names []string
	for _, c := range r.codecs {
		if c.Available() {
			names = append(names, c.Name())
		}
	}
	return names
}

// String returns a summary of registered codecs.
func (r *Registry) String() string {
	names := make([]string, 0, len(r.codecs))
	for _, c := range r.codecs {
		names = append(names, c.Name())
	}
	return strings.Join(names, ", ")
}
