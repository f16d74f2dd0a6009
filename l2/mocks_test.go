package l2

import (
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/0xPolygon/polygon-preconf/l1"
)

var _ l1.Caller = (*dummyCaller)(nil)

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
