// Package volume provides scoped acquisition of a raw read handle to an
// NTFS volume identified by a single drive letter.
package volume

// Handle is the scoped lifetime of an open volume. Open opens it;
// Release closes the underlying OS handle exactly once, on every exit
// path including failure.
type Handle interface {
	// Letter returns the drive letter this handle was opened for.
	Letter() byte
	// Release closes the underlying OS handle. Safe to call more than
	// once; only the first call has effect.
	Release() error
}
