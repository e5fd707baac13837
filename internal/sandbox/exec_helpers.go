package sandbox

import (
	"bytes"
	"os/exec"
)

type buffer struct{ bytes.Buffer }

func asExitError(err error) (*exec.ExitError, bool) {
	ee, ok := err.(*exec.ExitError)
	return ee, ok
}
