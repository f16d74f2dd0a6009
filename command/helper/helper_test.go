package helper

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/0xPolygon/polygon-preconf/command"
)

func TestFormatKV(t *testing.T) {
	t.Parallel()

	out := FormatKV([]string{"ID|1", "Status|"})
	require.Equal(t, "ID     = 1\nStatus = <none>", out)
}

func TestResolveAddr(t *testing.T) {
	t.Parallel()

	addr, err := ResolveAddr(":8545")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8545", addr.String())

	_, err = ResolveAddr("not an address")
	require.Error(t, err)
}

func TestGetJSONRPCAddress(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	RegisterJSONRPCFlag(cmd)

	addr, err := GetJSONRPCAddress(cmd)
	require.NoError(t, err)
	require.Equal(t, command.DefaultJSONRPCAddress, addr)

	require.NoError(t, cmd.PersistentFlags().Set(command.JSONRPCFlag, "::bad"))

	_, err = GetJSONRPCAddress(cmd)
	require.Error(t, err)
}

func TestHandleSignals_ServiceStops(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	done := make(chan error, 1)
	stopErr := errors.New("watchdog")
	done <- stopErr

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.ErrorIs(t, HandleSignals(cancel, done, command.InitializeOutputter(cmd)), stopErr)
}
