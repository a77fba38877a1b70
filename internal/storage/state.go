package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

const (
	stateCollection = "monitor_state"
	stateDocumentID = "last_run"
)

// LastRunState reads the summary of the most recent run. It returns nil
// without error when no run has been recorded yet.
func (c *Client) LastRunState(ctx context.Context) (*models.RunState, error) {
	docSnap, err := c.client.Collection(stateCollection).Doc(stateDocumentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			slog.Debug("No run state recorded yet", "collection", stateCollection, "document", stateDocumentID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run state: %w", err)
	}

	var state models.RunState
	if err := docSnap.DataTo(&state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}
	return &state, nil
}

// SaveRunState overwrites the last-run summary.
func (c *Client) SaveRunState(ctx context.Context, state models.RunState) error {
	if state.FinishedAt.IsZero() {
		state.FinishedAt = time.Now()
	}
	if _, err := c.client.Collection(stateCollection).Doc(stateDocumentID).Set(ctx, state); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// Ping checks that Firestore is reachable by reading the run state document.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.LastRunState(ctx)
	return err
}
