package domain

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomClosed    = errors.New("room session closed")
	ErrNotInRoom     = errors.New("user not in the room")
	ErrCanvasLocked  = errors.New("canvas is locked")
	ErrNotCreator    = errors.New("only the room creator can do this")
	ErrEmptyMessage  = errors.New("empty message")
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidStroke = errors.New("invalid stroke")
)
