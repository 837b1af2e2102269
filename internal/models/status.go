package models

import "fmt"

// Status is the upload state of an Entry. It is a closed set: the zero value
// is StatusPending and values outside the declared constants are invalid.
type Status uint8

const (
	StatusPending Status = iota
	StatusUploading
	StatusSuccess
	StatusError
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusUploading:
		return "uploading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError:
		return true
	case StatusPending, StatusUploading:
		return false
	}
	panic(fmt.Sprintf("models: unknown status %d", uint8(s)))
}

// CanTransition reports whether an entry in status s may move to next.
// Allowed: pending -> uploading -> {success, error}.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusUploading
	case StatusUploading:
		return next == StatusSuccess || next == StatusError
	case StatusSuccess, StatusError:
		return false
	}
	return false
}

// ParseStatus converts a wire name back into a Status.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "pending":
		return StatusPending, nil
	case "uploading":
		return StatusUploading, nil
	case "success":
		return StatusSuccess, nil
	case "error":
		return StatusError, nil
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown status %d", uint8(s))
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
