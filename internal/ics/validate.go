package ics

import (
	"errors"
	"fmt"
	"time"

	"calharvest/internal/model"
)

// ErrValidation marks a round-trip validation failure. The publish gate
// treats it as fatal and rolls back to the last-known-good artifact.
var ErrValidation = errors.New("artifact validation failed")

// Validate decodes the serialized artifact and asserts it represents the
// same event set as the harvested source for the requested window. When
// expectedSplit is non-empty the window is divided into that many equal
// consecutive sub-windows and both the source and decoded counts must match
// the configured number in every sub-window exactly. Any mismatch is a
// failure, not a warning.
func Validate(artifact []byte, source []model.Event, window model.Window, loc *time.Location, expectedSplit []int) error {
	decoded, err := Decode(artifact, loc, window)
	if err != nil {
		return fmt.Errorf("%w: decode: %v", ErrValidation, err)
	}

	srcWindowed := window.Filter(source)
	decWindowed := window.Filter(decoded)

	if len(srcWindowed) != len(decWindowed) {
		return fmt.Errorf("%w: window count mismatch: source=%d decoded=%d",
			ErrValidation, len(srcWindowed), len(decWindowed))
	}

	if len(expectedSplit) == 0 {
		return nil
	}

	subs := window.Split(len(expectedSplit))
	for i, sub := range subs {
		want := expectedSplit[i]
		gotSrc := len(sub.Filter(srcWindowed))
		gotDec := len(sub.Filter(decWindowed))
		if gotSrc != want {
			return fmt.Errorf("%w: sub-window %d source count mismatch: want=%d got=%d",
				ErrValidation, i+1, want, gotSrc)
		}
		if gotDec != want {
			return fmt.Errorf("%w: sub-window %d decoded count mismatch: want=%d got=%d",
				ErrValidation, i+1, want, gotDec)
		}
	}
	return nil
}
