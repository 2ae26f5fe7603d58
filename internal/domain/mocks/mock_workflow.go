// Package mocks provides testify mocks for the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"zipmirror.dev/pkg/zipmirror/internal/domain"
)

// MockWorkflow is a mock domain.Workflow.
type MockWorkflow struct {
	mock.Mock
}

var _ domain.Workflow = (*MockWorkflow)(nil)

// NewMockWorkflow creates a MockWorkflow whose expectations are asserted when
// the test ends.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	m := &MockWorkflow{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockWorkflow) Sync(ctx context.Context, args domain.SyncArgs) (domain.Outcome, error) {
	ret := m.Called(ctx, args)

	if fn, ok := ret.Get(0).(func(context.Context, domain.SyncArgs) (domain.Outcome, error)); ok {
		return fn(ctx, args)
	}

	return ret.Get(0).(domain.Outcome), ret.Error(1)
}

func (m *MockWorkflow) List(ctx context.Context, args domain.ListArgs) error {
	ret := m.Called(ctx, args)

	if fn, ok := ret.Get(0).(func(context.Context, domain.ListArgs) error); ok {
		return fn(ctx, args)
	}

	return ret.Error(0)
}

func (m *MockWorkflow) HasIndex(destination string) (bool, error) {
	ret := m.Called(destination)

	return ret.Bool(0), ret.Error(1)
}
