package status

import "testing"

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		OK:               "OK",
		InvalidArgument:  "InvalidArgument",
		DeadlineExceeded: "DeadlineExceeded",
		InvalidContent:   "InvalidContent",
		Unimplemented:    "Unimplemented",
		Internal:         "Internal",
		Code(99):         "Unknown",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Fatalf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}

func TestNewError(t *testing.T) {
	err := New(InvalidArgument, "bad input")
	if err.Code != InvalidArgument {
		t.Fatalf("Code = %v, want InvalidArgument", err.Code)
	}
	if err.Error() != "bad input" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "bad input")
	}
}
