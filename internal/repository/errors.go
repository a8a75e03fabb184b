package repository

import "errors"

// ErrDuplicateID indicates an insert collided with an existing record id.
var ErrDuplicateID = errors.New("repository: duplicate record id")
