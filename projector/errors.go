package projector

import "errors"

var (
	// ErrFieldType means a field holds a value whose shape does not match its
	// declared type, e.g. a reference holding a string.
	ErrFieldType = errors.New("projector: value does not match declared field type")

	// ErrNoLookup means a compact reference had to be expanded but the
	// projector was built without a Lookup.
	ErrNoLookup = errors.New("projector: compact reference needs a lookup")

	// ErrUnknownKind means a kind has no schema in the registry.
	ErrUnknownKind = errors.New("projector: unknown kind")
)
