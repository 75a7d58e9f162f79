package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/itinerary/internal/core"
	domainjob "github.com/target/itinerary/internal/domain/job"
	"github.com/target/itinerary/internal/domain/model"
	"github.com/target/itinerary/internal/observability/statsd"
)

// StateEvents groups the outbound sides of the State service.
type StateEvents struct {
	Publisher core.EventPublisher // Required
	Store     core.StatusStore    // Optional
}

// StateHandlersOptions groups dependencies for NewStateHandlers.
type StateHandlersOptions struct {
	Repo       core.JobRepository
	Events     StateEvents
	ClaimLease time.Duration // Optional: defaults to 30s
	Metrics    statsd.Sink
	Logger     *slog.Logger
}

// StateHandlers holds one handler per inbound command of the State service.
type StateHandlers struct {
	JobCreation *JobCreationHandler
	Geocoding   *BranchUpdateHandler[model.GeocodingComplete]
	Directions  *BranchUpdateHandler[model.DirectionsComplete]
	Weather     *BranchUpdateHandler[model.WeatherComplete]
	Imaging     *BranchUpdateHandler[model.ImagingComplete]
	Notifier    *CompletionNotifier
}

// NewStateHandlers builds the job creation handler, the four branch handlers and the shared notifier.
func NewStateHandlers(opts StateHandlersOptions) (*StateHandlers, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Events.Publisher == nil {
		return nil, errors.New("EventPublisher is required")
	}
	lease := opts.ClaimLease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	policy, err := domainjob.NewClaimPolicy(lease)
	if err != nil {
		return nil, fmt.Errorf("create claim policy: %w", err)
	}

	status := NewStatusReporter(StatusReporterOptions{
		Publisher: opts.Events.Publisher,
		Store:     opts.Events.Store,
		Logger:    opts.Logger,
	})
	notifier, err := NewCompletionNotifier(CompletionNotifierOptions{
		Repo:      opts.Repo,
		Publisher: opts.Events.Publisher,
		Policy:    policy,
		Observe:   NotifierObservability{Status: status, Metrics: opts.Metrics, Logger: opts.Logger},
	})
	if err != nil {
		return nil, err
	}
	creation, err := NewJobCreationHandler(JobCreationHandlerOptions{Repo: opts.Repo, Status: status, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	branchOpts := BranchUpdateHandlerOptions{Repo: opts.Repo, Notifier: notifier, Status: status, Logger: opts.Logger}
	h := &StateHandlers{JobCreation: creation, Notifier: notifier}
	if h.Geocoding, err = NewBranchUpdateHandler[model.GeocodingComplete](model.BranchGeocoding, branchOpts); err != nil {
		return nil, err
	}
	if h.Directions, err = NewBranchUpdateHandler[model.DirectionsComplete](model.BranchDirections, branchOpts); err != nil {
		return nil, err
	}
	if h.Weather, err = NewBranchUpdateHandler[model.WeatherComplete](model.BranchWeather, branchOpts); err != nil {
		return nil, err
	}
	if h.Imaging, err = NewBranchUpdateHandler[model.ImagingComplete](model.BranchImaging, branchOpts); err != nil {
		return nil, err
	}
	return h, nil
}

// Register binds every handler to its inbound message type.
func (h *StateHandlers) Register(bus *CommandBus) error {
	return errors.Join(
		Register[model.JobCreated](bus, model.MessageJobCreated, h.JobCreation),
		Register[model.GeocodingComplete](bus, model.MessageGeocodingComplete, h.Geocoding),
		Register[model.DirectionsComplete](bus, model.MessageDirectionsComplete, h.Directions),
		Register[model.WeatherComplete](bus, model.MessageWeatherComplete, h.Weather),
		Register[model.ImagingComplete](bus, model.MessageImagingComplete, h.Imaging),
	)
}

// NewStateCommandBus builds the handlers and returns a bus with all of them registered.
func NewStateCommandBus(opts StateHandlersOptions) (*CommandBus, error) {
	h, err := NewStateHandlers(opts)
	if err != nil {
		return nil, err
	}
	bus := NewCommandBus()
	if err := h.Register(bus); err != nil {
		return nil, fmt.Errorf("register state handlers: %w", err)
	}
	return bus, nil
}
