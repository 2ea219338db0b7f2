package catalog

import "errors"

// ErrNotFound is returned by GetNamespace/GetTable when the id is unknown.
var ErrNotFound = errors.New("catalog: not found")
