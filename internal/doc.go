// Package internal holds pure helpers shared by the authcore surface:
// URL query augmentation and HTTP status-range classification.
//
// Nothing here is part of the public API. Helpers must stay free of I/O
// and of imports from the root package (no cycles).
package internal
