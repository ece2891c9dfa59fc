package stage

import (
	"errors"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
)

func asErrsError(err error, target **errs.Error) bool {
	return errors.As(err, target)
}
