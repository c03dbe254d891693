package models

import "fmt"

// ExitStatus is returned up through the run loop when the user program
// exits. The machine halts with this code.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", e)
}
