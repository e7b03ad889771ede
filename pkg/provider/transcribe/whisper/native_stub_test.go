//go:build !whispercpp

package whisper

import (
	"errors"
	"testing"
)

func TestNewNative_Unavailable(t *testing.T) {
	t.Parallel()
	if _, err := NewNative(NativeConfig{ModelPath: "ggml-base.bin"}); !errors.Is(err, ErrNativeUnavailable) {
		t.Fatalf("err = %v, want ErrNativeUnavailable", err)
	}
}
