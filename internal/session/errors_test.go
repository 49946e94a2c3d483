package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pipboy3000/usual-tone-of-voice/internal/capture"
	"github.com/pipboy3000/usual-tone-of-voice/internal/delivery"
	"github.com/pipboy3000/usual-tone-of-voice/internal/llm"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
	"github.com/pipboy3000/usual-tone-of-voice/internal/stt"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrPermissionDenied, KindPermissionDenied},
		{fmt.Errorf("%w: %w", ErrResourceUnavailable, capture.ErrNoAudio), KindResourceUnavailable},
		{capture.ErrNoAudio, KindResourceUnavailable},
		{fmt.Errorf("%w: missing", stt.ErrModelMissing), KindResourceUnavailable},
		{stt.ErrEngineUnavailable, KindResourceUnavailable},
		{fmt.Errorf("%w: bad header", silence.ErrDecode), KindDecode},
		{fmt.Errorf("%w: exit 1", stt.ErrEngine), KindEngine},
		{&llm.RequestError{StatusCode: 401}, KindRewriteRequest},
		{fmt.Errorf("wrapped: %w", &llm.EmptyOutputError{}), KindRewriteEmpty},
		{delivery.ErrPasteUnavailable, KindDelivery},
		{errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateRecording.String() != "recording" || StateTranscribing.String() != "transcribing" {
		t.Fatal("unexpected state names")
	}
}

func TestEventWire(t *testing.T) {
	ev := Event{
		Type:      EventDiscarded,
		SessionID: "s1",
		State:     StateIdle,
		Err:       errors.New("boom"),
		Kind:      KindUnknown,
		Analysis:  &silence.Analysis{TotalDuration: 2, ActiveDuration: 0.1},
	}
	wire := ev.Wire()
	if wire.Type != "discarded" || wire.State != "idle" || wire.Error != "boom" {
		t.Fatalf("unexpected wire event %+v", wire)
	}
	if wire.TotalSeconds != 2 || wire.ActiveSeconds != 0.1 {
		t.Fatalf("analysis not carried: %+v", wire)
	}
}
