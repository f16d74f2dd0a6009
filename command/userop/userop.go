package userop

import (
	"github.com/spf13/cobra"

	"github.com/0xPolygon/polygon-preconf/command/helper"
	"github.com/0xPolygon/polygon-preconf/command/userop/status"
	"github.com/0xPolygon/polygon-preconf/command/userop/submit"
)

func GetCommand() *cobra.Command {
	userOpCmd := &cobra.Command{
		Use:   "userop",
		Short: "Top level command for submitting user ops to a preconfirmation node and querying their status",
	}

	helper.RegisterJSONRPCFlag(userOpCmd)

	userOpCmd.AddCommand(
		submit.GetCommand(),
		status.GetCommand(),
	)

	return userOpCmd
}
