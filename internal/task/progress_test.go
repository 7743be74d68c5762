package task

import "testing"

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestSpeedLabel(t *testing.T) {
	tests := []struct {
		bps  float64
		want string
	}{
		{0, "0.0 KB/s"},
		{1024, "1.0 KB/s"},
		{1536, "1.5 KB/s"},
	}
	for _, tt := range tests {
		if got := speedLabel(tt.bps); got != tt.want {
			t.Errorf("speedLabel(%v) = %q, want %q", tt.bps, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusNew, false},
		{StatusQueued, false},
		{StatusDownloading, false},
		{StatusDownloadComplete, false},
		{StatusMuxing, false},
		{StatusMuxed, true},
		{StatusCancelled, true},
		{StatusMuxFailed, true},
	}
	for _, tt := range tests {
		if got := tt.s.Terminal(); got != tt.want {
			t.Errorf("%v.Terminal() = %v, want %v", tt.s, got, tt.want)
		}
	}
}
