//go:build !portaudio

package capture

import (
	"fmt"
	"log/slog"
)

// NewPortAudioRecorder needs the portaudio build tag and the native
// PortAudio library.
func NewPortAudioRecorder(_ string, _, _ int, _ *slog.Logger) (Recorder, error) {
	return nil, fmt.Errorf("%w: built without the portaudio tag", ErrUnavailable)
}
