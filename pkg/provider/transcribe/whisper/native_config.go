package whisper

import "errors"

// ErrNativeUnavailable is returned by NewNative in builds without the
// "whispercpp" tag.
var ErrNativeUnavailable = errors.New("whisper: native engine not compiled in (build with -tags whispercpp)")

// NativeConfig holds the settings for NewNative.
type NativeConfig struct {
	// ModelPath is the path to a ggml model file. Required.
	ModelPath string

	// Language is the language hint. Empty or "auto" lets whisper detect it.
	Language string

	// Threads is the number of CPU threads per job. Zero keeps the library
	// default.
	Threads uint

	// MaxMediaBytes caps media downloads. Zero means DefaultMaxMediaBytes.
	MaxMediaBytes int64
}
