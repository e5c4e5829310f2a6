package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tatianab/casefile/internal/engine"
)

// Generator is a mock type for engine.Generator.
type Generator struct {
	mock.Mock
}

var _ engine.Generator = (*Generator)(nil)

// RequestTurn provides a mock function with given fields: ctx, req
func (m *Generator) RequestTurn(ctx context.Context, req engine.TurnRequest) (string, error) {
	ret := m.Called(ctx, req)
	if rf, ok := ret.Get(0).(func(context.Context, engine.TurnRequest) (string, error)); ok {
		return rf(ctx, req)
	}
	return ret.String(0), ret.Error(1)
}

// RequestEnding provides a mock function with given fields: ctx, req
func (m *Generator) RequestEnding(ctx context.Context, req engine.EndingRequest) (string, error) {
	ret := m.Called(ctx, req)
	if rf, ok := ret.Get(0).(func(context.Context, engine.EndingRequest) (string, error)); ok {
		return rf(ctx, req)
	}
	return ret.String(0), ret.Error(1)
}

// RequestIllustration provides a mock function with given fields: ctx, req
func (m *Generator) RequestIllustration(ctx context.Context, req engine.IllustrationRequest) (string, error) {
	ret := m.Called(ctx, req)
	return ret.String(0), ret.Error(1)
}

func (m *Generator) Close() error {
	return m.Called().Error(0)
}

// NewGenerator creates a Generator mock that asserts its expectations on cleanup.
func NewGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *Generator {
	m := &Generator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
