package common

import (
	"os"
	"regexp"
)

// MaskSecret hides a password or key in log output, keeping the first and
// last four characters of long values.
//
//	MaskSecret("")                       // "<not set>"
//	MaskSecret("short")                  // "***"
//	MaskSecret("myverylongsecretkey123") // "myve...y123"
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return "<not set>"
	case len(secret) <= 8:
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// GetEnv returns the environment variable key, or fallback when unset.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9.]+`)

// SafeName converts a project name to the form used by python packaging:
// every run of characters other than letters, digits and '.' becomes '-'.
//
//	SafeName("app_booking") // "app-booking"
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "-")
}

// PyBool renders a boolean the way the deployed python applications expect
// to read it from the environment.
func PyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Ptr is used to fill optional pillar values in tests and defaults.
func Ptr[T any](v T) *T {
	return &v
}

// PtrValue dereferences an optional pillar value, nil gives the zero value.
func PtrValue[T any](ptr *T) T {
	if ptr == nil {
		var zero T
		return zero
	}
	return *ptr
}
