package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tatianab/casefile/internal/speech"
)

// Synthesizer is a mock type for speech.Synthesizer.
type Synthesizer struct {
	mock.Mock
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

func (m *Synthesizer) Synthesize(ctx context.Context, text, voice string) (speech.Audio, error) {
	ret := m.Called(ctx, text, voice)
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (speech.Audio, error)); ok {
		return rf(ctx, text, voice)
	}
	audio, _ := ret.Get(0).(speech.Audio)
	return audio, ret.Error(1)
}

func (m *Synthesizer) Stop() {
	m.Called()
}

// NewSynthesizer creates a Synthesizer mock that asserts its expectations on cleanup.
func NewSynthesizer(t interface {
	mock.TestingT
	Cleanup(func())
}) *Synthesizer {
	m := &Synthesizer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
