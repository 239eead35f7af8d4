package layout

import "errors"

// ErrNoSize is returned by IntrinsicSize for images that do not declare
// usable dimensions.
var ErrNoSize = errors.New("layout: image has no intrinsic size")
