package bridge

import "errors"

// ErrInvalidTopic indicates a topic that does not match the device scheme.
var ErrInvalidTopic = errors.New("bridge: invalid topic")
