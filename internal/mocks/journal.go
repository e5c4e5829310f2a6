package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tatianab/casefile/internal/models"
)

// Journal is a mock type for orchestrator.Journal.
type Journal struct {
	mock.Mock
}

func (m *Journal) OpenCase(ctx context.Context, id string, c models.CaseFile, maxScore int, at time.Time) error {
	return m.Called(ctx, id, c, maxScore, at).Error(0)
}

func (m *Journal) AppendTurn(ctx context.Context, id string, rec models.TurnRecord) error {
	return m.Called(ctx, id, rec).Error(0)
}

func (m *Journal) CloseCase(ctx context.Context, id string, status models.Status, score int, e models.Ending, at time.Time) error {
	return m.Called(ctx, id, status, score, e, at).Error(0)
}
