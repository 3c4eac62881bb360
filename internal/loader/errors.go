package loader

import "errors"

// DocumentError reports a source document that is missing, unreadable or
// not a valid feature collection. It is fatal for the conversion run.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return "document " + e.Path + ": " + e.Err.Error()
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// IsDocumentError returns true if err (or any error in its chain) is a
// DocumentError.
func IsDocumentError(err error) bool {
	var de *DocumentError
	return errors.As(err, &de)
}

func documentError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &DocumentError{Path: path, Err: err}
}
