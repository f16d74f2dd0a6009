package status

import (
	"github.com/spf13/cobra"

	"github.com/0xPolygon/polygon-preconf/command"
	"github.com/0xPolygon/polygon-preconf/command/helper"
	"github.com/0xPolygon/polygon-preconf/jsonrpc"
)

func GetCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:     "status",
		Short:   "Returns the status of a submitted user op",
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	cmdFlags(statusCmd)

	return statusCmd
}

func cmdFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(
		&params.id,
		idFlag,
		0,
		"the id returned when the user op was submitted",
	)

	_ = cmd.MarkFlagRequired(idFlag)
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return params.validateFlags()
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	addr, err := helper.GetJSONRPCAddress(cmd)
	if err != nil {
		outputter.SetError(err)

		return
	}

	client, err := jsonrpc.NewClient(addr)
	if err != nil {
		outputter.SetError(err)

		return
	}
	defer client.Close()

	status, err := client.UserOpStatus(params.id)
	if err != nil {
		outputter.SetError(err)

		return
	}

	outputter.SetCommandResult(&StatusResult{
		ID:     params.id,
		Status: status,
	})
}
