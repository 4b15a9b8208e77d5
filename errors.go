package folioboard

import (
	"fmt"

	"github.com/folioboard/folioboard.go/pkg/constants"
)

// PermissionError reports an access denial on a specific remote path.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprint("unable to access record: ", e.Path)
}

func (e *PermissionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return constants.ErrAccessDenied
}
