package jsonrpc

import (
	"fmt"
)

// Error is an error that carries its JSON-RPC error code
type Error interface {
	Error() string
	ErrorCode() int
}

const (
	parseErrorCode     = -32700
	invalidRequestCode = -32600
	methodNotFoundCode = -32601
	invalidParamsCode  = -32602
	internalErrorCode  = -32603
	storageErrorCode   = -32000
	notFoundErrorCode  = -32001
)

type rpcError struct {
	code int
	err  string
}

func (e *rpcError) Error() string {
	return e.err
}

func (e *rpcError) ErrorCode() int {
	return e.code
}

func NewParseError(msg string) *rpcError {
	return &rpcError{parseErrorCode, msg}
}

func NewInvalidRequestError(msg string) *rpcError {
	return &rpcError{invalidRequestCode, msg}
}

func NewMethodNotFoundError(method string) *rpcError {
	return &rpcError{methodNotFoundCode, fmt.Sprintf("the method %s does not exist/is not available", method)}
}

func NewInvalidParamsError(msg string) *rpcError {
	return &rpcError{invalidParamsCode, msg}
}

func NewInternalError(msg string) *rpcError {
	return &rpcError{internalErrorCode, msg}
}

func NewStorageError(msg string) *rpcError {
	return &rpcError{storageErrorCode, msg}
}

func NewNotFoundError(msg string) *rpcError {
	return &rpcError{notFoundErrorCode, msg}
}
