package services

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrNotMember          = errors.New("not a member of this server")
	ErrCannotWrite        = errors.New("you do not have permission to send messages in this channel")
	ErrNotOwner           = errors.New("only the author can change this message")
	ErrBanned             = errors.New("user is banned")
	ErrRateLimited        = errors.New("sending too fast, slow down")
	ErrInvalidParent      = errors.New("reply target is not in this conversation")
	ErrAlreadyPinned      = errors.New("message is already pinned")
	ErrNotPinned          = errors.New("message is not pinned")
	ErrUserNameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("username or password incorrect")
	ErrSelfMessage        = errors.New("cannot message yourself")
)
