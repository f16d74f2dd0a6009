package contractsapi

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/abi"
)

func decodeEvent(event *abi.Event, log *ethgo.Log, out interface{}) error {
	val, err := event.ParseLog(log)
	if err != nil {
		return err
	}

	return decodeImpl(val, out)
}

func decodeMethod(method *abi.Method, input []byte, out interface{}) error {
	if len(input) < 4 {
		return fmt.Errorf("invalid call data, len = %d", len(input))
	}

	sig := method.ID()
	if !bytes.HasPrefix(input, sig) {
		return fmt.Errorf("prefix is not correct for method %s", method.Name)
	}

	val, err := abi.Decode(method.Inputs, input[4:])
	if err != nil {
		return err
	}

	return decodeImpl(val, out)
}

func decodeType(typ *abi.Type, input []byte, out interface{}) error {
	val, err := abi.Decode(typ, input)
	if err != nil {
		return err
	}

	return decodeImpl(val, out)
}

func decodeImpl(input interface{}, out interface{}) error {
	metadata := &mapstructure.Metadata{}
	dc := &mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "abi",
		Metadata:   metadata,
		DecodeHook: bigIntToUintHook,
	}

	ms, err := mapstructure.NewDecoder(dc)
	if err != nil {
		return err
	}

	if err = ms.Decode(input); err != nil {
		return err
	}

	if len(metadata.Unused) != 0 {
		return fmt.Errorf("some keys not used: %v", metadata.Unused)
	}

	return nil
}

// bigIntToUintHook narrows odd sized integers (uint48) that the abi decodes as big.Int
func bigIntToUintHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	n, ok := data.(*big.Int)
	if !ok {
		return data, nil
	}

	switch to.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !n.IsUint64() {
			return nil, fmt.Errorf("value %s overflows %s", n, to)
		}

		return n.Uint64(), nil
	default:
		return data, nil
	}
}
