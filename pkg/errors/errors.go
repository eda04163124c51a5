package errors

import (
	"fmt"
)

var (
	// taxonomy; everything flashd returns wraps one of these
	ErrValidation = fmt.Errorf("validation error")
	ErrBuild      = fmt.Errorf("build error")
	ErrDeploy     = fmt.Errorf("deploy error")
	ErrStorage    = fmt.Errorf("storage error")

	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidArg      = fmt.Errorf("invalid arg")
	ErrInvalidState    = fmt.Errorf("invalid state")
	ErrScheduleInPast  = fmt.Errorf("%w scheduled time must be in the future", ErrValidation)
	ErrSourceNotFound  = fmt.Errorf("%w source file does not exist", ErrValidation)
	ErrDeployTimeout   = fmt.Errorf("%w timed out", ErrDeploy)
	ErrSchedulerClosed = fmt.Errorf("scheduler closed")
)
