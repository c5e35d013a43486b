package device

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := Errorf("create buffer", MemObjectAllocationFail, "%d bytes", 4096)
	want := "create buffer failed: MEM_OBJECT_ALLOCATION_FAILURE (-4): 4096 bytes"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("iteration 3: %w", Errorf("finish", OutOfResources, "queue stalled"))
	if got := StatusOf(wrapped); got != OutOfResources {
		t.Errorf("StatusOf(wrapped) = %v, want %v", got, OutOfResources)
	}
	if got := StatusOf(errors.New("plain")); got != Success {
		t.Errorf("StatusOf(plain) = %v, want %v", got, Success)
	}
	if got := StatusOf(nil); got != Success {
		t.Errorf("StatusOf(nil) = %v, want %v", got, Success)
	}
}

func TestStatusString(t *testing.T) {
	if Status(-999).String() != "STATUS(-999)" {
		t.Errorf("Unknown status rendered as %q", Status(-999).String())
	}
	if InvalidKernelName.String() != "INVALID_KERNEL_NAME" {
		t.Errorf("InvalidKernelName rendered as %q", InvalidKernelName.String())
	}
}
