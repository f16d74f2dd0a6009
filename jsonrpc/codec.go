package jsonrpc

import (
	"encoding/json"
	"fmt"
)

const jsonRPCVersion = "2.0"

// Request is a jsonrpc request
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BatchRequest is a list of jsonrpc requests
type BatchRequest []Request

// Response is a jsonrpc response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Bytes return the serialized response
func (r Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// ErrorObject is a jsonrpc error
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements error interface
func (e *ErrorObject) Error() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("jsonrpc.internal marshal error: %v", err)
	}

	return string(data)
}

// NewRPCResponse returns the response for the given request id, either a result or an error
func NewRPCResponse(id interface{}, jsonrpcver string, reply []byte, err Error) Response {
	response := Response{
		JSONRPC: jsonrpcver,
		ID:      id,
	}

	if err != nil {
		response.Error = &ErrorObject{
			Code:    err.ErrorCode(),
			Message: err.Error(),
		}

		return response
	}

	if reply == nil {
		reply = []byte("null")
	}

	response.Result = reply

	return response
}
