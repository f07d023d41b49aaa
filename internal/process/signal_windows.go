//go:build windows

package process

import (
	"errors"
	"os"
	"syscall"
)

var (
	kernel32                     = syscall.NewLazyDLL("kernel32.dll")
	procGenerateConsoleCtrlEvent = kernel32.NewProc("GenerateConsoleCtrlEvent")
)

const ctrlBreakEvent = 1

// terminate delivers CTRL_BREAK to the backend's process group. It fails
// when the parent has no console, in which case Stop escalates at once.
func terminate(p *os.Process) error {
	ret, _, err := procGenerateConsoleCtrlEvent.Call(uintptr(ctrlBreakEvent), uintptr(p.Pid))
	if ret == 0 {
		return err
	}
	return nil
}

// kill calls TerminateProcess through os.Process.
func kill(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
