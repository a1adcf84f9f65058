// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Status is the access state of a checkpoint. Values are compared by identity;
// the text form exists only for storage and transport boundaries.
type Status uint8

// Known statuses. StatusUnknown is the zero value.
const (
	StatusUnknown Status = iota
	StatusOpen
	StatusClosed
	StatusPartial
)

var statusNames = [...]string{
	StatusUnknown: "unknown",
	StatusOpen:    "open",
	StatusClosed:  "closed",
	StatusPartial: "partial",
}

// Statuses lists every status in declaration order.
func Statuses() []Status {
	return []Status{StatusUnknown, StatusOpen, StatusClosed, StatusPartial}
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool { return int(s) < len(statusNames) }

// ParseStatus converts the boundary text form into a Status.
func ParseStatus(v string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if name == key {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("%w: %q", ErrUnknownStatus, v)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CheckpointType classifies how a checkpoint is operated.
type CheckpointType uint8

// Known checkpoint types.
const (
	CheckpointPermanent CheckpointType = iota
	CheckpointFlying
	CheckpointTemporary
	CheckpointBarrier
)

var checkpointTypeNames = [...]string{
	CheckpointPermanent: "permanent",
	CheckpointFlying:    "flying",
	CheckpointTemporary: "temporary",
	CheckpointBarrier:   "barrier",
}

// CheckpointTypes lists every checkpoint type in declaration order.
func CheckpointTypes() []CheckpointType {
	return []CheckpointType{CheckpointPermanent, CheckpointFlying, CheckpointTemporary, CheckpointBarrier}
}

func (t CheckpointType) String() string {
	if int(t) < len(checkpointTypeNames) {
		return checkpointTypeNames[t]
	}
	return fmt.Sprintf("checkpoint_type(%d)", uint8(t))
}

// ParseCheckpointType converts the boundary text form into a CheckpointType.
func ParseCheckpointType(v string) (CheckpointType, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	for i, name := range checkpointTypeNames {
		if name == key {
			return CheckpointType(i), nil
		}
	}
	return CheckpointPermanent, fmt.Errorf("%w: %q", ErrUnknownCheckpointType, v)
}

// MarshalText implements encoding.TextMarshaler.
func (t CheckpointType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *CheckpointType) UnmarshalText(b []byte) error {
	parsed, err := ParseCheckpointType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Source identifies where a record came from.
type Source uint8

// Known sources.
const (
	SourceManual Source = iota
	SourceTelegram
	SourceReddit
	SourceTwitter
	SourceGoogleMaps
)

var sourceNames = [...]string{
	SourceManual:     "manual",
	SourceTelegram:   "telegram",
	SourceReddit:     "reddit",
	SourceTwitter:    "twitter",
	SourceGoogleMaps: "google_maps",
}

// SocialSources lists the sources that produce social signals.
func SocialSources() []Source {
	return []Source{SourceTelegram, SourceReddit, SourceTwitter}
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// ParseSource converts the boundary text form into a Source.
func ParseSource(v string) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	for i, name := range sourceNames {
		if name == key {
			return Source(i), nil
		}
	}
	return SourceManual, fmt.Errorf("%w: %q", ErrUnknownSource, v)
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	parsed, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
