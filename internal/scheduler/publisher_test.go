package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
)

func TestPublishersFanOut(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingPublisher{err: boom}
	second := &recordingPublisher{}

	ps := Publishers{first, nil, second}
	err := ps.Publish(context.Background(), "front", domain.View{}, reconcile.Result{})

	require.ErrorIs(t, err, boom)
	require.Len(t, multierr.Errors(err), 1)
	require.Equal(t, 1, first.count())
	require.Equal(t, 1, second.count(), "a failing sink must not stop the others")

	require.NoError(t, Publishers{}.Publish(context.Background(), "front", domain.View{}, reconcile.Result{}))
}
