package core

import "errors"

// ErrDuplicate marks an insert that lost a uniqueness race: another worker
// already persisted the same continuation. The executor treats it as benign.
var ErrDuplicate = errors.New("duplicate row")
