package escapi

import "testing"

func TestSetDLLPath(t *testing.T) {
	t.Cleanup(func() { SetDLLPath("") })

	SetDLLPath(`C:\dev\escapi\target\release\escapi_rust.dll`)
	if got := DLLPath(); got != `C:\dev\escapi\target\release\escapi_rust.dll` {
		t.Errorf("DLLPath = %q", got)
	}
	SetDLLPath("")
	if got := DLLPath(); got != DefaultDLL {
		t.Errorf("DLLPath after reset = %q, want %q", got, DefaultDLL)
	}
}
