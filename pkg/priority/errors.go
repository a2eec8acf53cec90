package priority

import "errors"

// ErrInvalidConfig is returned when scorer weights, patterns or bands are inconsistent
var ErrInvalidConfig = errors.New("invalid priority config")
