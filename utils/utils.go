// Package utils provides small shared helpers for the link service.
package utils

// ToPtr returns a pointer to v, for the pointer-typed model flags such as
// ShortURL.IsPrimary and Session.Expired.
func ToPtr[T any](v T) *T {
	return &v
}

// IsTrue reports whether a pointer-typed flag is set and true.
func IsTrue(b *bool) bool {
	return b != nil && *b
}
