// Package registry records the globals a Wayland compositor advertises and
// resolves them by interface name.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// Interface names this client knows how to bind
const (
	OutputInterface              = "wl_output"
	ExportDmabufManagerInterface = "zwlr_export_dmabuf_manager_v1"
)

var (
	// ErrCapabilityMissing is returned when no advertisement matches a required interface
	ErrCapabilityMissing = errors.New("capability not advertised")

	// ErrBindRejected is returned when an advertisement cannot be bound by this client
	ErrBindRejected = errors.New("bind rejected")
)

// MissingError names the interface that was not advertised
type MissingError struct {
	Interface string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCapabilityMissing, e.Interface)
}

func (e *MissingError) Unwrap() error {
	return ErrCapabilityMissing
}

// Advertisement is one wl_registry.global event
type Advertisement struct {
	Name      uint32 // registry name, unique for the session
	Interface string
	Version   uint32
}

func (a Advertisement) String() string {
	return fmt.Sprintf("%s v%d (name=%d)", a.Interface, a.Version, a.Name)
}

// Registry keeps advertisements in the order the server sent them.
// It is not safe for concurrent use; the dispatch goroutine owns it.
type Registry struct {
	ads []Advertisement
}

// New returns an empty registry
func New() *Registry {
	return &Registry{}
}

// Add records a global. A repeated name replaces the earlier record in place.
func (r *Registry) Add(a Advertisement) {
	for i, existing := range r.ads {
		if existing.Name == a.Name {
			r.ads[i] = a
			return
		}
	}
	r.ads = append(r.ads, a)
}

// Remove drops a global after wl_registry.global_remove
func (r *Registry) Remove(name uint32) {
	r.ads = slices.DeleteFunc(r.ads, func(a Advertisement) bool {
		return a.Name == name
	})
}

// Reset clears every record ahead of a fresh enumeration
func (r *Registry) Reset() {
	r.ads = nil
}

// Len returns the number of recorded advertisements
func (r *Registry) Len() int {
	return len(r.ads)
}

// Enumerate yields every advertisement in server order. The sequence reflects
// the registry at the time it is ranged over.
func (r *Registry) Enumerate() iter.Seq[Advertisement] {
	return func(yield func(Advertisement) bool) {
		for _, a := range r.ads {
			if !yield(a) {
				return
			}
		}
	}
}

// ResolveAll returns every advertisement for iface in server order
func (r *Registry) ResolveAll(iface string) []Advertisement {
	var out []Advertisement
	for a := range r.Enumerate() {
		if a.Interface == iface {
			out = append(out, a)
		}
	}
	return out
}

// ResolveLast picks the last advertisement for iface. When several outputs are
// advertised the most recently announced one is selected; callers that need a
// particular device must filter ResolveAll themselves.
func (r *Registry) ResolveLast(iface string) (Advertisement, error) {
	matches := r.ResolveAll(iface)
	if len(matches) == 0 {
		return Advertisement{}, &MissingError{Interface: iface}
	}
	return matches[len(matches)-1], nil
}
