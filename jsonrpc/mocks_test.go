package jsonrpc

import (
	"github.com/stretchr/testify/mock"

	"github.com/0xPolygon/polygon-preconf/bridge"
)

var _ userOpHandler = (*mockHandler)(nil)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Submit(op *bridge.UserOp) (uint64, error) {
	args := m.Called(op)

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

func (m *mockHandler) Status(id uint64) (bridge.UserOpStatus, error) {
	args := m.Called(id)

	return args.Get(0).(bridge.UserOpStatus), args.Error(1) //nolint:forcetypeassert
}
