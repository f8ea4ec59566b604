package registry

import "fmt"

// Versions maps an interface name to the highest version this client implements
type Versions map[string]uint32

// Supported is the version table used when binding globals
var Supported = Versions{
	OutputInterface:              4,
	ExportDmabufManagerInterface: 1,
}

// Check returns the version to request in wl_registry.bind for a.
// Advertisements above the supported version, or for interfaces the client
// does not implement, are rejected.
func (v Versions) Check(a Advertisement) (uint32, error) {
	limit, ok := v[a.Interface]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not implemented", ErrBindRejected, a.Interface)
	}
	if a.Version == 0 {
		return 0, fmt.Errorf("%w: %s advertised with version 0", ErrBindRejected, a.Interface)
	}
	if a.Version > limit {
		return 0, fmt.Errorf("%w: %s version %d exceeds supported version %d",
			ErrBindRejected, a.Interface, a.Version, limit)
	}
	return a.Version, nil
}
