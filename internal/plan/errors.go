package plan

import "errors"

var (
	ErrPlan   = errors.New("plan failed")
	ErrScript = errors.New("invalid shell script")
)
