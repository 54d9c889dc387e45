// Package ptr provides helpers for building pointers to inline values. The
// SDK request types use pointers to tell "not provided" apart from a zero value.
package ptr

// String returns a pointer to the provided value.
func String(s string) *string {
	return &s
}

// Int returns a pointer to the provided value.
func Int(i int) *int {
	return &i
}

// Float64 returns a pointer to the provided value.
func Float64(f float64) *float64 {
	return &f
}
