package kgraph

import "errors"

var (
	// ErrNoTriples is returned when a graph artifact is requested but the
	// run produced no triples.
	ErrNoTriples = errors.New("kgraph: no triples extracted")

	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("kgraph: document not found")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("kgraph: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("kgraph: parsing failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("kgraph: invalid configuration")

	// ErrStoreDisabled is returned by operations that need persistence
	// when the engine runs without a store.
	ErrStoreDisabled = errors.New("kgraph: store disabled")

	// ErrNilService is returned when a pipeline is built without a service.
	ErrNilService = errors.New("kgraph: nil service")
)
