package queues

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidRequest = errors.New("invalid watch request")

// WatchRequest asks for one discovery job with the given limits.
type WatchRequest struct {
	RequestID       string `json:"requestId"`
	MinimumPlayers  *int   `json:"minimumPlayers"`
	MaximumTicDelay *int   `json:"maximumTicDelay"`
}

// Validate checks that both limits are present and non-negative.
func (r *WatchRequest) Validate() error {
	switch {
	case r.RequestID == "":
		return fmt.Errorf("%w: requestId is required", ErrInvalidRequest)
	case r.MinimumPlayers == nil || *r.MinimumPlayers < 0:
		return fmt.Errorf("%w: minimumPlayers must be a non-negative integer", ErrInvalidRequest)
	case r.MaximumTicDelay == nil || *r.MaximumTicDelay < 0:
		return fmt.Errorf("%w: maximumTicDelay must be a non-negative integer", ErrInvalidRequest)
	}
	return nil
}

const (
	EnvelopeVersion = "1.0"
	AlertType       = "battle-servers-found"
)

type ServerSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Players int    `json:"players"`
	RTTMs   int64  `json:"rttMs"`
	Tics    int    `json:"tics"`
}

// DiscoveryAlert announces the result of a finished discovery job.
type DiscoveryAlert struct {
	EnvelopeVersion string          `json:"envelopeVersion"`
	Type            string          `json:"type"`
	JobID           string          `json:"jobId"`
	RequestID       string          `json:"requestId,omitempty"`
	Count           int             `json:"count"`
	Summary         string          `json:"summary"`
	Servers         []ServerSummary `json:"servers"`
}

type Subscriber interface {
	Start(ctx context.Context, handler func(context.Context, *WatchRequest) error) error
}

type Publisher interface {
	PublishAlert(ctx context.Context, alert *DiscoveryAlert) error
}
