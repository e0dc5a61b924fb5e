package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "kycflow/pkg/platform/audit"
)

func TestWorkerDrainsUntilInboxClosed(t *testing.T) {
	inbox := make(chan audit.Event, 3)
	var got []string
	w := NewWorker(func(_ context.Context, e audit.Event) error {
		got = append(got, e.Action)
		return nil
	}, inbox, nil)

	inbox <- audit.Event{Action: "LOGIN_SUCCESS"}
	inbox <- audit.Event{Action: "LOGOUT"}
	close(inbox)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []string{"LOGIN_SUCCESS", "LOGOUT"}, got)
}

func TestWorkerContinuesAfterDeliveryError(t *testing.T) {
	inbox := make(chan audit.Event, 2)
	calls := 0
	w := NewWorker(func(context.Context, audit.Event) error {
		calls++
		return errors.New("store down")
	}, inbox, nil)

	inbox <- audit.Event{Action: "A"}
	inbox <- audit.Event{Action: "B"}
	close(inbox)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	inbox := make(chan audit.Event)
	w := NewWorker(func(context.Context, audit.Event) error { return nil }, inbox, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
