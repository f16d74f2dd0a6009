package status

import (
	"bytes"
	"fmt"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/command/helper"
)

type StatusResult struct {
	ID     uint64              `json:"id"`
	Status bridge.UserOpStatus `json:"status"`
}

func (r *StatusResult) GetOutput() string {
	var buffer bytes.Buffer

	txHash := ""
	if r.Status.TxHash != nil {
		txHash = r.Status.TxHash.String()
	}

	buffer.WriteString("\n[USER OP STATUS]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("ID|%d", r.ID),
		fmt.Sprintf("Status|%s", r.Status.Status),
		fmt.Sprintf("Tx hash|%s", txHash),
		fmt.Sprintf("Reason|%s", r.Status.Reason),
	}))

	return buffer.String()
}
