package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate has no process-group signal on windows; the child is killed.
func terminate(p *os.Process) error {
	return p.Kill()
}
