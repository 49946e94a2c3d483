//go:build !whisper

package stt

import "fmt"

// NewWhisperCppRecognizer is only available in binaries built with the
// whisper tag, which links whisper.cpp through cgo.
func NewWhisperCppRecognizer() (Recognizer, error) {
	return nil, fmt.Errorf("%w: built without the whisper tag", ErrEngineUnavailable)
}
