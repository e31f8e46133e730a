package util

// Ptr returns &v, for optional config fields set from literals.
func Ptr[T any](v T) *T {
	return &v
}
