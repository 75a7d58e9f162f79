package model

import (
	"encoding/json"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/target/itinerary/internal/errors"
)

// MessageType is the transport-level name of a command or event.
type MessageType string

// Inbound command message types.
const (
	MessageJobCreated         MessageType = "job.created"
	MessageGeocodingComplete  MessageType = "geocoding.complete"
	MessageDirectionsComplete MessageType = "directions.complete"
	MessageWeatherComplete    MessageType = "weather.complete"
	MessageImagingComplete    MessageType = "imaging.complete"
)

// InboundMessageTypes lists every command the State service consumes.
func InboundMessageTypes() []MessageType {
	return []MessageType{
		MessageJobCreated,
		MessageGeocodingComplete,
		MessageDirectionsComplete,
		MessageWeatherComplete,
		MessageImagingComplete,
	}
}

// Command is a decoded, validatable inbound message addressed to one job.
type Command interface {
	Validate() error
	AggregateID() string
}

// Normalizer is implemented by commands whose fields have a canonical form. The command bus
// normalises every decoded command before validating it.
type Normalizer interface {
	Normalize()
}

// BranchCommand is a command carrying the result of one branch.
type BranchCommand interface {
	Command
	BranchSucceeded() bool
	BranchPayload() (json.RawMessage, error)
}

// CanonicalJobID returns id in the lower-case hyphenated UUID form jobs are stored under.
// Upper-case, braced and urn:uuid: spellings of the same UUID map to one id. Input that is
// not a UUID is returned trimmed so validation can reject it.
func CanonicalJobID(id string) string {
	id = strings.TrimSpace(id)
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// ValidateJobID checks id is a UUID in canonical form.
func ValidateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errRequired("job_id")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return apperrors.ValidationField("job_id", "job_id must be a UUID")
	}
	if parsed.String() != id {
		return apperrors.ValidationField("job_id", "job_id must be a lower-case hyphenated UUID")
	}
	return nil
}

func validateInputs(start, dest, email string) error {
	if strings.TrimSpace(start) == "" {
		return errRequired("starting_address")
	}
	if strings.TrimSpace(dest) == "" {
		return errRequired("destination_address")
	}
	if strings.TrimSpace(email) == "" {
		return errRequired("email")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.ValidationField("email", "email is not a valid address")
	}
	return nil
}

func errRequired(field string) error {
	return apperrors.ValidationField(field, field+" is required")
}

// JobCreated announces a new itinerary request.
type JobCreated struct {
	JobID              string `json:"job_id"`
	StartingAddress    string `json:"starting_address"`
	DestinationAddress string `json:"destination_address"`
	Email              string `json:"email"`
}

// Validate checks the id and every input is present.
func (c JobCreated) Validate() error {
	if err := ValidateJobID(c.JobID); err != nil {
		return err
	}
	return validateInputs(c.StartingAddress, c.DestinationAddress, c.Email)
}

// AggregateID returns the job id.
func (c JobCreated) AggregateID() string { return c.JobID }

// Normalize canonicalises the job id and trims the inputs.
func (c *JobCreated) Normalize() {
	c.JobID = CanonicalJobID(c.JobID)
	c.StartingAddress = strings.TrimSpace(c.StartingAddress)
	c.DestinationAddress = strings.TrimSpace(c.DestinationAddress)
	c.Email = strings.TrimSpace(c.Email)
}

// CreateRequest converts the command into a repository request.
func (c JobCreated) CreateRequest() *CreateJobRequest {
	return &CreateJobRequest{
		ID:                 CanonicalJobID(c.JobID),
		StartingAddress:    c.StartingAddress,
		DestinationAddress: c.DestinationAddress,
		Email:              c.Email,
	}
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeocodingResult is the outcome of geocoding one address.
type GeocodingResult struct {
	Success     bool         `json:"success"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

// GeocodingComplete reports geocoding of both addresses.
type GeocodingComplete struct {
	JobID             string          `json:"job_id"`
	StartingResult    GeocodingResult `json:"starting_result"`
	DestinationResult GeocodingResult `json:"destination_result"`
}

// Validate checks the job id.
func (c GeocodingComplete) Validate() error { return ValidateJobID(c.JobID) }

// AggregateID returns the job id.
func (c GeocodingComplete) AggregateID() string { return c.JobID }

// Normalize canonicalises the job id.
func (c *GeocodingComplete) Normalize() { c.JobID = CanonicalJobID(c.JobID) }

// BranchSucceeded requires both addresses to have resolved.
func (c GeocodingComplete) BranchSucceeded() bool {
	return c.StartingResult.Success && c.DestinationResult.Success
}

// BranchPayload returns the stored geocoding result.
func (c GeocodingComplete) BranchPayload() (json.RawMessage, error) {
	return json.Marshal(struct {
		StartingResult    GeocodingResult `json:"starting_result"`
		DestinationResult GeocodingResult `json:"destination_result"`
	}{c.StartingResult, c.DestinationResult})
}

// DirectionStep is one instruction of a route.
type DirectionStep struct {
	Instruction     string  `json:"instruction"`
	DistanceKm      float64 `json:"distance_km"`
	DurationSeconds int     `json:"duration_seconds"`
}

// DirectionsResult is the outcome of route computation.
type DirectionsResult struct {
	Success           bool            `json:"success"`
	TravelTimeSeconds *int            `json:"travel_time_seconds,omitempty"`
	DistanceKm        *float64        `json:"distance_km,omitempty"`
	Steps             []DirectionStep `json:"steps,omitempty"`
	Error             *string         `json:"error,omitempty"`
}

// DirectionsComplete reports the directions branch result.
type DirectionsComplete struct {
	JobID      string           `json:"job_id"`
	Directions DirectionsResult `json:"directions"`
}

// Validate checks the job id.
func (c DirectionsComplete) Validate() error { return ValidateJobID(c.JobID) }

// AggregateID returns the job id.
func (c DirectionsComplete) AggregateID() string { return c.JobID }

// Normalize canonicalises the job id.
func (c *DirectionsComplete) Normalize() { c.JobID = CanonicalJobID(c.JobID) }

// BranchSucceeded reports the directions success flag.
func (c DirectionsComplete) BranchSucceeded() bool { return c.Directions.Success }

// BranchPayload returns the stored directions result.
func (c DirectionsComplete) BranchPayload() (json.RawMessage, error) {
	return json.Marshal(c.Directions)
}

// ForecastItem is the forecast at one point of the route.
type ForecastItem struct {
	Time         string       `json:"time"`
	Location     *Coordinates `json:"location,omitempty"`
	TemperatureC float64      `json:"temperature_c"`
	Summary      string       `json:"summary"`
}

// ForecastResult is the outcome of the weather lookup.
type ForecastResult struct {
	Success bool           `json:"success"`
	Items   []ForecastItem `json:"items,omitempty"`
	Error   *string        `json:"error,omitempty"`
}

// WeatherComplete reports the weather branch result.
type WeatherComplete struct {
	JobID    string         `json:"job_id"`
	Forecast ForecastResult `json:"forecast"`
}

// Validate checks the job id.
func (c WeatherComplete) Validate() error { return ValidateJobID(c.JobID) }

// AggregateID returns the job id.
func (c WeatherComplete) AggregateID() string { return c.JobID }

// Normalize canonicalises the job id.
func (c *WeatherComplete) Normalize() { c.JobID = CanonicalJobID(c.JobID) }

// BranchSucceeded reports the forecast success flag.
func (c WeatherComplete) BranchSucceeded() bool { return c.Forecast.Success }

// BranchPayload returns the stored forecast.
func (c WeatherComplete) BranchPayload() (json.RawMessage, error) { return json.Marshal(c.Forecast) }

// ImagingResult is the outcome of route image rendering.
type ImagingResult struct {
	Success bool    `json:"success"`
	URL     *string `json:"url,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// ImagingComplete reports the imaging branch result.
type ImagingComplete struct {
	JobID   string        `json:"job_id"`
	Imaging ImagingResult `json:"imaging"`
}

// Validate checks the job id.
func (c ImagingComplete) Validate() error { return ValidateJobID(c.JobID) }

// AggregateID returns the job id.
func (c ImagingComplete) AggregateID() string { return c.JobID }

// Normalize canonicalises the job id.
func (c *ImagingComplete) Normalize() { c.JobID = CanonicalJobID(c.JobID) }

// BranchSucceeded reports the imaging success flag.
func (c ImagingComplete) BranchSucceeded() bool { return c.Imaging.Success }

// BranchPayload returns the stored imaging result.
func (c ImagingComplete) BranchPayload() (json.RawMessage, error) { return json.Marshal(c.Imaging) }
