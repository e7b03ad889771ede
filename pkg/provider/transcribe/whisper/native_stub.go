//go:build !whispercpp

package whisper

import "github.com/MrWong99/transcribot/pkg/provider/transcribe"

// Native is unavailable in this build.
type Native struct {
	*transcribe.LocalJobs
}

// NewNative always fails without the "whispercpp" build tag.
func NewNative(NativeConfig) (*Native, error) {
	return nil, ErrNativeUnavailable
}

// Format implements transcribe.Provider.
func (n *Native) Format(output any) (string, error) {
	return Format(output)
}
