package paginate

import "errors"

// ErrAborted wraps a panic raised while a traversal step ran.
var ErrAborted = errors.New("paginate: traversal aborted")
