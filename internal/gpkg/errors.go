package gpkg

import "errors"

// WriteError reports a GeoPackage that could not be written to its
// destination. No file is left at the destination path when it is returned.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "write " + e.Path + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsWriteError returns true if err (or any error in its chain) is a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
