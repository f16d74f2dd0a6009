package submit

import (
	"bytes"
	"fmt"

	"github.com/0xPolygon/polygon-preconf/command/helper"
)

type SubmitResult struct {
	ID        uint64 `json:"id"`
	Submitter string `json:"submitter"`
}

func (r *SubmitResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[USER OP SUBMITTED]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("ID|%d", r.ID),
		fmt.Sprintf("Submitter|%s", r.Submitter),
	}))

	return buffer.String()
}
