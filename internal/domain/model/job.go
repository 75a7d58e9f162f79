// Package model defines the job aggregate, the inbound commands and the outbound events of the itinerary State service.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Branch identifies one of the four independent processing branches of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Branch string

const (
	// BranchGeocoding resolves the starting and destination addresses to coordinates.
	BranchGeocoding Branch = "geocoding"
	// BranchDirections computes the route between the two addresses.
	BranchDirections Branch = "directions"
	// BranchWeather fetches the forecast along the route.
	BranchWeather Branch = "weather"
	// BranchImaging renders the route image.
	BranchImaging Branch = "imaging"
)

// AllBranches returns every branch in a stable order.
func AllBranches() []Branch {
	return []Branch{BranchGeocoding, BranchDirections, BranchWeather, BranchImaging}
}

// Valid returns true if the Branch is one of the four known branches.
func (b Branch) Valid() bool {
	return b == BranchGeocoding || b == BranchDirections || b == BranchWeather || b == BranchImaging
}

// UnmarshalText implements encoding.TextUnmarshaler so branches can be parsed from CLI args and env.
func (b *Branch) UnmarshalText(text []byte) error {
	v := Branch(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid branch: %q", string(text))
	}
	*b = v
	return nil
}

// BranchState is the tri-state resolution flag of a branch slot.
type BranchState string

const (
	// BranchUnresolved means no result event has been applied yet.
	BranchUnresolved BranchState = "unresolved"
	// BranchSucceeded means the branch reported success.
	BranchSucceeded BranchState = "succeeded"
	// BranchFailed means the branch reported failure.
	BranchFailed BranchState = "failed"
)

// Valid returns true if the BranchState is known.
func (s BranchState) Valid() bool {
	return s == BranchUnresolved || s == BranchSucceeded || s == BranchFailed
}

// Resolved reports whether the branch has produced a result, successful or not.
func (s BranchState) Resolved() bool {
	return s == BranchSucceeded || s == BranchFailed
}

// BranchStateFor maps a branch success flag to its resolved state.
func BranchStateFor(success bool) BranchState {
	if success {
		return BranchSucceeded
	}
	return BranchFailed
}

// BranchSlot holds the resolution state and the raw result payload of one branch.
type BranchSlot struct {
	State  BranchState     `json:"state"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Job is the aggregate that accumulates branch results for one itinerary request.
type Job struct {
	ID                   string     `json:"id"`
	StartingAddress      string     `json:"starting_address"`
	DestinationAddress   string     `json:"destination_address"`
	Email                string     `json:"email"`
	Geocoding            BranchSlot `json:"geocoding"`
	Directions           BranchSlot `json:"directions"`
	Weather              BranchSlot `json:"weather"`
	Imaging              BranchSlot `json:"imaging"`
	NotifiedAt           *time.Time `json:"notified_at,omitempty"`
	NotifyClaimToken     *string    `json:"notify_claim_token,omitempty"`
	NotifyClaimExpiresAt *time.Time `json:"notify_claim_expires_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Slot returns the slot for branch b. Unknown branches yield an unresolved slot.
func (j *Job) Slot(b Branch) BranchSlot {
	if p := j.slotPtr(b); p != nil {
		return *p
	}
	return BranchSlot{State: BranchUnresolved}
}

// SetSlot replaces the slot for branch b. Used by stores when hydrating a job.
func (j *Job) SetSlot(b Branch, slot BranchSlot) {
	if p := j.slotPtr(b); p != nil {
		*p = slot
	}
}

func (j *Job) slotPtr(b Branch) *BranchSlot {
	switch b {
	case BranchGeocoding:
		return &j.Geocoding
	case BranchDirections:
		return &j.Directions
	case BranchWeather:
		return &j.Weather
	case BranchImaging:
		return &j.Imaging
	default:
		return nil
	}
}

// BranchStates projects the four slot states.
func (j *Job) BranchStates() BranchStates {
	return BranchStates{
		Geocoding:  j.Geocoding.State,
		Directions: j.Directions.State,
		Weather:    j.Weather.State,
		Imaging:    j.Imaging.State,
	}
}

// Completion evaluates the job's current completion status.
func (j *Job) Completion() CompletionStatus {
	return Evaluate(j.BranchStates())
}

// Notified reports whether the completion notification has been recorded.
func (j *Job) Notified() bool {
	return j.NotifiedAt != nil
}

// CreateJobRequest represents the inputs needed to (re)initialise a job aggregate.
type CreateJobRequest struct {
	ID                 string `json:"id"`
	StartingAddress    string `json:"starting_address"`
	DestinationAddress string `json:"destination_address"`
	Email              string `json:"email"`
}

// Validate checks the request has an id and all inputs.
func (r *CreateJobRequest) Validate() error {
	if r == nil {
		return errRequired("request")
	}
	if err := ValidateJobID(r.ID); err != nil {
		return err
	}
	return validateInputs(r.StartingAddress, r.DestinationAddress, r.Email)
}

// NewJob builds a fresh aggregate with every slot unresolved and no notification recorded.
func NewJob(req *CreateJobRequest, now time.Time) *Job {
	unresolved := BranchSlot{State: BranchUnresolved}
	return &Job{
		ID:                 req.ID,
		StartingAddress:    req.StartingAddress,
		DestinationAddress: req.DestinationAddress,
		Email:              req.Email,
		Geocoding:          unresolved,
		Directions:         unresolved,
		Weather:            unresolved,
		Imaging:            unresolved,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
