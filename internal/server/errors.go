package server

import "errors"

var (
	errIsDirectory = errors.New("is a directory")
	errNotRegular  = errors.New("not a regular file")
)
