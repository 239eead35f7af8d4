package content

import "errors"

// ErrNoBody is returned by Parse when the markup has no <body> element.
var ErrNoBody = errors.New("content: document has no body")
