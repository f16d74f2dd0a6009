package submit

import (
	"github.com/spf13/cobra"

	"github.com/0xPolygon/polygon-preconf/command"
	"github.com/0xPolygon/polygon-preconf/command/helper"
	"github.com/0xPolygon/polygon-preconf/jsonrpc"
)

func GetCommand() *cobra.Command {
	submitCmd := &cobra.Command{
		Use:     "submit",
		Short:   "Submits a user op to the preconfirmation node",
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	setFlags(submitCmd)

	return submitCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&params.submitterRaw,
		submitterFlag,
		"",
		"the address of the contract the calldata is executed on",
	)

	cmd.Flags().StringVar(
		&params.calldataRaw,
		calldataFlag,
		"",
		"the hex encoded calldata of the user op",
	)

	_ = cmd.MarkFlagRequired(submitterFlag)
	_ = cmd.MarkFlagRequired(calldataFlag)
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return params.validateFlags()
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := command.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	result, err := submit(cmd)
	if err != nil {
		outputter.SetError(err)

		return
	}

	outputter.SetCommandResult(result)
}

func submit(cmd *cobra.Command) (*SubmitResult, error) {
	addr, err := helper.GetJSONRPCAddress(cmd)
	if err != nil {
		return nil, err
	}

	client, err := jsonrpc.NewClient(addr)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	id, err := client.SendUserOp(params.userOp)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		ID:        id,
		Submitter: params.userOp.Submitter.String(),
	}, nil
}
