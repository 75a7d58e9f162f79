package data

import (
	"fmt"
	"time"

	"github.com/target/itinerary/internal/domain/model"
)

// JSONB columns are cast to text so results round-trip byte for byte into json.RawMessage.
const jobColumns = `
  id,
  starting_address,
  destination_address,
  email,
  geocoding_state,
  geocoding_result::text AS geocoding_result,
  directions_state,
  directions_result::text AS directions_result,
  weather_state,
  weather_result::text AS weather_result,
  imaging_state,
  imaging_result::text AS imaging_result,
  notified_at,
  notify_claim_token,
  notify_claim_expires_at,
  created_at,
  updated_at`

const upsertJobQuery = `
	INSERT INTO jobs (id, starting_address, destination_address, email, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (id) DO UPDATE SET
		starting_address = EXCLUDED.starting_address,
		destination_address = EXCLUDED.destination_address,
		email = EXCLUDED.email,
		geocoding_state = 'unresolved',
		geocoding_result = NULL,
		directions_state = 'unresolved',
		directions_result = NULL,
		weather_state = 'unresolved',
		weather_result = NULL,
		imaging_state = 'unresolved',
		imaging_result = NULL,
		notified_at = NULL,
		notify_claim_token = NULL,
		notify_claim_expires_at = NULL,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + jobColumns

const selectJobQuery = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

const deleteJobQuery = `DELETE FROM jobs WHERE id = $1`

const selectBranchStatesQuery = `
	SELECT geocoding_state, directions_state, weather_state, imaging_state
	FROM jobs
	WHERE id = $1`

const claimNotificationQuery = `
	UPDATE jobs
	SET notify_claim_token = $2,
		notify_claim_expires_at = $4,
		updated_at = $3
	WHERE id = $1
	  AND notified_at IS NULL
	  AND (notify_claim_expires_at IS NULL OR notify_claim_expires_at <= $3)`

const confirmNotificationQuery = `
	UPDATE jobs
	SET notified_at = $3,
		notify_claim_expires_at = NULL,
		updated_at = $3
	WHERE id = $1
	  AND notify_claim_token = $2
	  AND notified_at IS NULL`

const releaseNotificationQuery = `
	UPDATE jobs
	SET notify_claim_token = NULL,
		notify_claim_expires_at = NULL
	WHERE id = $1
	  AND notify_claim_token = $2
	  AND notified_at IS NULL`

func updateBranchQuery(cols BranchColumns) string {
	return fmt.Sprintf(`
	UPDATE jobs
	SET %s = $2,
		%s = $3::jsonb,
		updated_at = $4
	WHERE id = $1
	  AND notified_at IS NULL`, cols.State, cols.Result)
}

// jobRow mirrors jobColumns for pgx.RowToStructByName.
type jobRow struct {
	ID                   string     `db:"id"`
	StartingAddress      string     `db:"starting_address"`
	DestinationAddress   string     `db:"destination_address"`
	Email                string     `db:"email"`
	GeocodingState       string     `db:"geocoding_state"`
	GeocodingResult      *string    `db:"geocoding_result"`
	DirectionsState      string     `db:"directions_state"`
	DirectionsResult     *string    `db:"directions_result"`
	WeatherState         string     `db:"weather_state"`
	WeatherResult        *string    `db:"weather_result"`
	ImagingState         string     `db:"imaging_state"`
	ImagingResult        *string    `db:"imaging_result"`
	NotifiedAt           *time.Time `db:"notified_at"`
	NotifyClaimToken     *string    `db:"notify_claim_token"`
	NotifyClaimExpiresAt *time.Time `db:"notify_claim_expires_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func (r *jobRow) toModel() *model.Job {
	return &model.Job{
		ID:                   r.ID,
		StartingAddress:      r.StartingAddress,
		DestinationAddress:   r.DestinationAddress,
		Email:                r.Email,
		Geocoding:            model.BranchSlot{State: model.BranchState(r.GeocodingState), Result: RawJSON(r.GeocodingResult)},
		Directions:           model.BranchSlot{State: model.BranchState(r.DirectionsState), Result: RawJSON(r.DirectionsResult)},
		Weather:              model.BranchSlot{State: model.BranchState(r.WeatherState), Result: RawJSON(r.WeatherResult)},
		Imaging:              model.BranchSlot{State: model.BranchState(r.ImagingState), Result: RawJSON(r.ImagingResult)},
		NotifiedAt:           utcPtr(r.NotifiedAt),
		NotifyClaimToken:     r.NotifyClaimToken,
		NotifyClaimExpiresAt: utcPtr(r.NotifyClaimExpiresAt),
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
