package l1

import (
	"encoding/json"

	"github.com/stretchr/testify/mock"
)

var _ Caller = (*dummyCaller)(nil)

// dummyCaller answers json rpc calls with canned raw results
type dummyCaller struct {
	mock.Mock
}

func (d *dummyCaller) Call(method string, out interface{}, params ...interface{}) error {
	args := d.Called(method, params)

	if err := args.Error(1); err != nil {
		return err
	}

	raw, ok := args.Get(0).(string)
	if !ok {
		raw = "null"
	}

	return json.Unmarshal([]byte(raw), out)
}
