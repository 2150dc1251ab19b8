package pipeline

import (
	"encoding/json"

	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/models"
)

// Status is the terminal state of one file's run.
type Status int

const (
	Accepted Status = iota
	Rejected
)

func (s Status) String() string {
	if s == Accepted {
		return "accepted"
	}
	return "rejected"
}

// MarshalJSON encodes the status as its name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Reason explains a rejection.
type Reason int

const (
	NoReason Reason = iota
	UnsupportedFileType
	AlreadyProcessed
)

func (r Reason) String() string {
	switch r {
	case UnsupportedFileType:
		return "unsupported_file_type"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return ""
	}
}

// MarshalJSON encodes the reason as its name.
func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Outcome is the result of processing one file.
type Outcome struct {
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Reason     Reason         `json:"reason,omitempty"`
	Clones     []models.Clone `json:"clones"`
	LOC        int            `json:"loc"`
	Chunks     int            `json:"chunks"`
	Candidates int            `json:"candidates"`
	Compared   int            `json:"compared"`
	Timers     *timing.Timers `json:"-"`
}

// Accepted reports whether the file was stored.
func (o *Outcome) Accepted() bool {
	return o.Status == Accepted
}

func rejected(name string, reason Reason, timers *timing.Timers) *Outcome {
	return &Outcome{Name: name, Status: Rejected, Reason: reason, Timers: timers}
}
