package helper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/0xPolygon/polygon-preconf/command"
	"github.com/0xPolygon/polygon-preconf/helper/common"
)

const shutdownGracePeriod = 15 * time.Second

var (
	errShutdownTimeout = errors.New("shutdown did not finish in time")
	errForcedShutdown  = errors.New("forced shutdown on second signal")
)

// HandleSignals waits for a termination signal or for the service to stop on its own.
// On a signal the service is cancelled and given a grace period to shut down.
func HandleSignals(cancel context.CancelFunc, done <-chan error, outputter command.OutputFormatter) error {
	signalCh := common.GetTerminationSignalCh()

	select {
	case err := <-done:
		return err
	case sig := <-signalCh:
		outputter.SetCommandResult(&command.MessageResult{
			Message: fmt.Sprintf("\n[SIGNAL] Caught signal: %v\nGracefully shutting down client...", sig),
		})
		outputter.WriteOutput()
	}

	cancel()

	select {
	case err := <-done:
		return err
	case <-signalCh:
		return errForcedShutdown
	case <-time.After(shutdownGracePeriod):
		return errShutdownTimeout
	}
}

// FormatList formats a list into a string
func FormatList(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"

	return columnize.Format(in, columnConf)
}

// FormatKV formats key value pairs:
//
// Key = Value
//
// Key = <none>
func FormatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "

	return columnize.Format(in, columnConf)
}

// ResolveAddr resolves the passed in TCP address
func ResolveAddr(raw string) (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse addr '%s': %w", raw, err)
	}

	if addr.IP == nil {
		addr.IP = net.ParseIP("127.0.0.1")
	}

	return addr, nil
}

// RegisterJSONOutputFlag registers the --json output setting for all child commands
func RegisterJSONOutputFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(
		command.JSONOutputFlag,
		false,
		"get all outputs in json format (default false)",
	)
}

// RegisterJSONRPCFlag registers the JSON-RPC address flag for all child commands
func RegisterJSONRPCFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().String(
		command.JSONRPCFlag,
		command.DefaultJSONRPCAddress,
		"the JSON-RPC interface of the preconfirmation node",
	)
}

// GetJSONRPCAddress extracts the set JSON-RPC address
func GetJSONRPCAddress(cmd *cobra.Command) (string, error) {
	flag := cmd.Flag(command.JSONRPCFlag)
	if flag == nil {
		return "", fmt.Errorf("flag --%s is not registered", command.JSONRPCFlag)
	}

	raw := flag.Value.String()

	if _, err := url.ParseRequestURI(raw); err != nil {
		return "", fmt.Errorf("invalid JSON-RPC address %s: %w", raw, err)
	}

	return raw, nil
}
