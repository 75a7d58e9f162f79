package testutil

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/target/itinerary/internal/domain/model"
)

// JobCreatedBuilder provides a fluent interface for building JobCreated commands for testing.
type JobCreatedBuilder struct {
	cmd model.JobCreated
}

// NewJobCreated creates a builder with a random job id and sensible defaults.
func NewJobCreated() *JobCreatedBuilder {
	return &JobCreatedBuilder{cmd: model.JobCreated{
		JobID:              uuid.NewString(),
		StartingAddress:    "221B Baker Street, London",
		DestinationAddress: "10 Downing Street, London",
		Email:              "traveller@example.com",
	}}
}

// WithJobID sets the job id.
func (b *JobCreatedBuilder) WithJobID(id string) *JobCreatedBuilder {
	b.cmd.JobID = id
	return b
}

// WithEmail sets the email.
func (b *JobCreatedBuilder) WithEmail(email string) *JobCreatedBuilder {
	b.cmd.Email = email
	return b
}

// Build returns the command.
func (b *JobCreatedBuilder) Build() model.JobCreated {
	return b.cmd
}

// Body returns the command encoded as a wire message body.
func (b *JobCreatedBuilder) Body() []byte {
	return mustJSON(b.cmd)
}

// BranchMessage is one inbound branch result ready for dispatch.
type BranchMessage struct {
	Branch model.Branch
	Type   model.MessageType
	Body   []byte
}

// BranchResult builds the wire message reporting branch b of a job.
func BranchResult(jobID string, b model.Branch, success bool) BranchMessage {
	var errMsg *string
	if !success {
		errMsg = StringPtr(string(b) + " provider unavailable")
	}

	switch b {
	case model.BranchGeocoding:
		point := &model.Coordinates{Latitude: 51.5237, Longitude: -0.1585}
		return BranchMessage{Branch: b, Type: model.MessageGeocodingComplete, Body: mustJSON(model.GeocodingComplete{
			JobID:             jobID,
			StartingResult:    model.GeocodingResult{Success: true, Coordinates: point},
			DestinationResult: model.GeocodingResult{Success: success, Coordinates: point, Error: errMsg},
		})}
	case model.BranchDirections:
		seconds, km := 900, 3.4
		return BranchMessage{Branch: b, Type: model.MessageDirectionsComplete, Body: mustJSON(model.DirectionsComplete{
			JobID: jobID,
			Directions: model.DirectionsResult{
				Success: success, TravelTimeSeconds: &seconds, DistanceKm: &km, Error: errMsg,
				Steps: []model.DirectionStep{{Instruction: "Head south", DistanceKm: km, DurationSeconds: seconds}},
			},
		})}
	case model.BranchWeather:
		return BranchMessage{Branch: b, Type: model.MessageWeatherComplete, Body: mustJSON(model.WeatherComplete{
			JobID: jobID,
			Forecast: model.ForecastResult{
				Success: success, Error: errMsg,
				Items: []model.ForecastItem{{Time: "2026-03-01T12:00:00Z", TemperatureC: 11.5, Summary: "drizzle"}},
			},
		})}
	default:
		url := "https://images.example.com/route.png"
		return BranchMessage{Branch: model.BranchImaging, Type: model.MessageImagingComplete, Body: mustJSON(model.ImagingComplete{
			JobID:   jobID,
			Imaging: model.ImagingResult{Success: success, URL: &url, Error: errMsg},
		})}
	}
}

// AllBranchResults builds one message per branch in AllBranches order.
func AllBranchResults(jobID string, success bool) []BranchMessage {
	out := make([]BranchMessage, 0, 4)
	for _, b := range model.AllBranches() {
		out = append(out, BranchResult(jobID, b, success))
	}
	return out
}

// Permutations returns every ordering of msgs.
func Permutations(msgs []BranchMessage) [][]BranchMessage {
	if len(msgs) <= 1 {
		return [][]BranchMessage{append([]BranchMessage(nil), msgs...)}
	}
	var out [][]BranchMessage
	for i := range msgs {
		rest := make([]BranchMessage, 0, len(msgs)-1)
		rest = append(rest, msgs[:i]...)
		rest = append(rest, msgs[i+1:]...)
		for _, p := range Permutations(rest) {
			out = append(out, append([]BranchMessage{msgs[i]}, p...))
		}
	}
	return out
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
