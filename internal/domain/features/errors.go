package features

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for feature assembly.
var (
	ErrFeatureMismatch = errors.New("feature set does not match model feature names")
	ErrInvalidWindow   = errors.New("invalid feature window")
)

// MismatchError lists the keys that prevented a strict reindex.
type MismatchError struct {
	Missing []string
	Extra   []string
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	b.WriteString(ErrFeatureMismatch.Error())
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing %s", strings.Join(e.Missing, ","))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, "; unexpected %s", strings.Join(e.Extra, ","))
	}
	return b.String()
}

func (e *MismatchError) Unwrap() error { return ErrFeatureMismatch }
