package jsonrpc

import (
	"github.com/umbracle/ethgo/jsonrpc"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

// Client is a wrapper around jsonrpc.Client for the user op intake methods
type Client struct {
	client *jsonrpc.Client
}

// NewClient creates a new intake client
func NewClient(url string) (*Client, error) {
	client, err := jsonrpc.NewClient(url)
	if err != nil {
		return nil, err
	}

	return &Client{client}, nil
}

// SendUserOp submits the user op and returns its id
func (c *Client) SendUserOp(op *bridge.UserOp) (uint64, error) {
	var id uint64

	err := c.client.Call("surge_sendUserOp", &id, &SendUserOpRequest{
		Submitter: op.Submitter.String(),
		Calldata:  hex.EncodeToHex(op.Calldata),
	})

	return id, err
}

// UserOpStatus returns the status of the user op
func (c *Client) UserOpStatus(id uint64) (bridge.UserOpStatus, error) {
	var status bridge.UserOpStatus
	err := c.client.Call("surge_userOpStatus", &status, id)

	return status, err
}

// Close closes the underlying transport
func (c *Client) Close() error {
	return c.client.Close()
}
