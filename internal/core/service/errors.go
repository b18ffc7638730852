package service

import "errors"

var (
	ErrBusy            = errors.New("a call session is already in progress")
	ErrLeaveNotAllowed = errors.New("leave is only allowed once joined or after an error")
	ErrNoClient        = errors.New("no live call client")
	ErrClosed          = errors.New("session controller closed")
	ErrReleaseTimeout  = errors.New("call client release did not complete")
)
