package data

import (
	"encoding/json"
	"fmt"

	"github.com/target/itinerary/internal/domain/model"
)

// BranchColumns names the state and result columns backing one branch slot.
type BranchColumns struct {
	State  string
	Result string
}

// Column names are interpolated into UPDATE statements; they must only ever come from this table.
var branchColumns = map[model.Branch]BranchColumns{
	model.BranchGeocoding:  {State: "geocoding_state", Result: "geocoding_result"},
	model.BranchDirections: {State: "directions_state", Result: "directions_result"},
	model.BranchWeather:    {State: "weather_state", Result: "weather_result"},
	model.BranchImaging:    {State: "imaging_state", Result: "imaging_result"},
}

// ColumnsFor returns the columns of branch b.
func ColumnsFor(b model.Branch) (BranchColumns, error) {
	cols, ok := branchColumns[b]
	if !ok {
		return BranchColumns{}, fmt.Errorf("%w: %q", ErrUnknownBranch, b)
	}
	return cols, nil
}

// NullableJSON converts an empty payload to SQL NULL.
func NullableJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// RawJSON converts a nullable column back into a payload.
func RawJSON(s *string) json.RawMessage {
	if s == nil || *s == "" {
		return nil
	}
	return json.RawMessage(*s)
}
