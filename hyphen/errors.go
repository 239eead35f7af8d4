package hyphen

import "errors"

// ErrUnsupportedLanguage is returned by New for languages without bundled
// patterns.
var ErrUnsupportedLanguage = errors.New("hyphen: unsupported language")
