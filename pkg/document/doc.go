// Package document models a sample record as a generic tree of mappings,
// sequences and scalar leaves, and provides slash-delimited path addressing
// into that tree.
//
// A Document is what a stored record decodes to before any typed model is
// applied. Nested mappings are map[string]any, sequences are []any and leaves
// are strings, numbers, booleans or nil. Every field is optional, so readers
// must treat a missing path as ordinary data rather than an error.
//
// Paths follow JSON Pointer conventions:
//
//	/sample/label          mapping field "label" inside mapping "sample"
//	/sample/solvents/0     first element of sequence "solvents"
//	/a~1b                  the single key "a/b"
//
// Resolution never overwrites a present scalar to make room for a container.
// Doing so would hide a malformed edit, so it is reported as ErrPathConflict.
package document
