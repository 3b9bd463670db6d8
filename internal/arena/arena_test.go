package arena

import "testing"

func TestAllocZeroesAndSizes(t *testing.T) {
	a := New()
	b := a.Alloc(10)
	if len(b) != 10 {
		t.Fatalf("len = %d, want 10", len(b))
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("b[%d] = %d, want 0", i, v)
		}
	}
}

func TestAllocDoesNotAlias(t *testing.T) {
	a := New()
	first := a.Alloc(4)
	second := a.Alloc(4)
	copy(first, []byte{1, 2, 3, 4})
	for _, v := range second {
		if v != 0 {
			t.Fatalf("second slice aliases first: %v", second)
		}
	}
}

func TestAllocGrowsPastBlockSize(t *testing.T) {
	a := New()
	big := a.Alloc(defaultBlockSize + 1)
	if len(big) != defaultBlockSize+1 {
		t.Fatalf("len = %d, want %d", len(big), defaultBlockSize+1)
	}
	if len(a.blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(a.blocks))
	}
}

func TestCopyRetainsBytes(t *testing.T) {
	a := New()
	src := []byte("hello")
	dst := a.Copy(src)
	src[0] = 'X'
	if string(dst) != "hello" {
		t.Fatalf("dst = %q, want %q (Copy should not alias src)", dst, "hello")
	}
}

func TestResetReleasesBlocks(t *testing.T) {
	a := New()
	a.Alloc(100)
	if a.Bytes() != 100 {
		t.Fatalf("Bytes() = %d, want 100", a.Bytes())
	}
	a.Reset()
	if a.Bytes() != 0 {
		t.Fatalf("Bytes() after Reset = %d, want 0", a.Bytes())
	}
	b := a.Alloc(5)
	if len(b) != 5 {
		t.Fatalf("len after reset = %d, want 5", len(b))
	}
}

func TestAllocZeroLengthReturnsNil(t *testing.T) {
	a := New()
	if b := a.Alloc(0); b != nil {
		t.Fatalf("Alloc(0) = %v, want nil", b)
	}
}
