package parser

import "errors"

var ErrNotFound = errors.New("not found in page")

// Option is one choice of a radio group.
type Option struct {
	Index int
	Value string
	Label string
}
