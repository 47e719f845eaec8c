package align

import "testing"

func TestUp8(t *testing.T) {
	tests := []struct{ in, want uintptr }{
		{0, 0}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {4095, 4096},
	}
	for _, tt := range tests {
		if got := Up8(tt.in); got != tt.want {
			t.Errorf("Up8(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestUpTo(t *testing.T) {
	tests := []struct{ in, bound, want uintptr }{
		{0, 16, 0}, {1, 16, 16}, {16, 16, 16}, {17, 16, 32},
		{100, 4096, 4096}, {4096, 4096, 4096},
	}
	for _, tt := range tests {
		if got := UpTo(tt.in, tt.bound); got != tt.want {
			t.Errorf("UpTo(%d, %d) = %d, want %d", tt.in, tt.bound, got, tt.want)
		}
	}
}

// TestRound pins the derived-boundary behaviour: the step is the power
// of two above bound, so Round(x, 16) lands on 32-byte boundaries.
func TestRound(t *testing.T) {
	tests := []struct{ in, bound, want uintptr }{
		{0, 16, 0}, {1, 16, 32}, {32, 16, 32}, {33, 16, 64},
		{1, 8, 16}, {10, 4096, 8192}, {5, 0, 5},
	}
	for _, tt := range tests {
		if got := Round(tt.in, tt.bound); got != tt.want {
			t.Errorf("Round(%d, %d) = %d, want %d", tt.in, tt.bound, got, tt.want)
		}
	}
}

func TestIsPow2(t *testing.T) {
	for _, n := range []uintptr{1, 2, 4, 64, 4096, 1 << 30} {
		if !IsPow2(n) {
			t.Errorf("IsPow2(%d) = false", n)
		}
	}
	for _, n := range []uintptr{0, 3, 6, 48, 4097} {
		if IsPow2(n) {
			t.Errorf("IsPow2(%d) = true", n)
		}
	}
}
