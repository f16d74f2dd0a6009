package status

import (
	"errors"
)

const (
	idFlag = "id"
)

var (
	errMissingID = errors.New("user op id must be greater than zero")
)

var (
	params = &statusParams{}
)

type statusParams struct {
	id uint64
}

func (p *statusParams) validateFlags() error {
	if p.id == 0 {
		return errMissingID
	}

	return nil
}
