package l1

import (
	"context"

	"github.com/umbracle/ethgo/jsonrpc"
)

// Caller is the raw json rpc surface of a chain client
type Caller interface {
	Call(method string, out interface{}, params ...interface{}) error
}

var _ Caller = (*jsonrpc.Client)(nil)

// CallContext runs the call and gives up when ctx is done.
// The underlying client has no cancellation, an abandoned call completes in the background.
func CallContext(ctx context.Context, client Caller, method string, out interface{}, params ...interface{}) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- client.Call(method, out, params...)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
