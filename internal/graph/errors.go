package graph

import "errors"

// ErrMalformed reports a structurally invalid graph: an empty output name
// or a tensor produced by more than one node.
var ErrMalformed = errors.New("malformed graph")
