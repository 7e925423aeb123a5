package overlay

import "errors"

var (
	ErrNilDocument = errors.New("nil document")
	ErrNilRoot     = errors.New("nil root node")
	ErrForeignRoot = errors.New("root is not part of the document")
	// ErrNoSnapshot is logged when a translation-only overlay has no original content
	// to restore and is removed on its own.
	ErrNoSnapshot        = errors.New("no original content snapshot")
	ErrInvalidTransition = errors.New("invalid overlay state transition")
	ErrDetached          = errors.New("node is detached from the document")
)
