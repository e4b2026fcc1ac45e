package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNoPosition      = errors.New("no open position")
	ErrPositionOpen    = errors.New("position already open")
	ErrExecutionFailed = errors.New("execution failed")
	ErrLockHeld        = errors.New("lock already held")
	ErrAdvisorTimeout  = errors.New("advisor timed out")
	ErrAdvisorParse    = errors.New("advisor response unparseable")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrContextDone     = errors.New("context cancelled")
)
