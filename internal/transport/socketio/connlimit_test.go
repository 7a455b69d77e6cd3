package socketio

import (
	"fmt"
	"testing"
)

func TestConnectionLimiterLoopbackUnlimited(t *testing.T) {
	cl := NewConnectionLimiter(1)

	for _, ip := range []string{"127.0.0.1", "::1"} {
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("local-%s-%d", ip, i)
			allowed, evicted := cl.TryAdd(id, ip)
			if !allowed || evicted != "" {
				t.Errorf("loopback %s should be allowed without eviction, got allowed=%v evicted=%q", ip, allowed, evicted)
			}
		}
	}
}

func TestConnectionLimiterEvictsOldestExternal(t *testing.T) {
	cl := NewConnectionLimiter(1)

	if _, evicted := cl.TryAdd("first", "10.0.0.1"); evicted != "" {
		t.Errorf("first external should not evict, got %q", evicted)
	}
	if _, evicted := cl.TryAdd("second", "10.0.0.2"); evicted != "first" {
		t.Errorf("expected eviction of first, got %q", evicted)
	}
	if _, evicted := cl.TryAdd("third", "10.0.0.3"); evicted != "second" {
		t.Errorf("expected eviction of second, got %q", evicted)
	}
}

func TestConnectionLimiterExternalLimitIgnoresLoopback(t *testing.T) {
	cl := NewConnectionLimiter(1)

	cl.TryAdd("ext-1", "192.168.1.100")
	allowed, evicted := cl.TryAdd("local-1", "127.0.0.1")
	if !allowed || evicted != "" {
		t.Errorf("loopback must not count against the external cap, got allowed=%v evicted=%q", allowed, evicted)
	}
}

func TestConnectionLimiterRemoveFreesSlot(t *testing.T) {
	cl := NewConnectionLimiter(1)

	cl.TryAdd("ext-1", "192.168.1.100")
	cl.Remove("ext-1")

	allowed, evicted := cl.TryAdd("ext-2", "192.168.1.101")
	if !allowed || evicted != "" {
		t.Errorf("slot should be free after removal, got allowed=%v evicted=%q", allowed, evicted)
	}
}

func TestConnectionLimiterDuplicateAddIsIdempotent(t *testing.T) {
	cl := NewConnectionLimiter(1)

	cl.TryAdd("ext-1", "192.168.1.100")
	allowed, evicted := cl.TryAdd("ext-1", "192.168.1.100")
	if !allowed || evicted != "" {
		t.Errorf("re-adding a tracked client must be a no-op, got allowed=%v evicted=%q", allowed, evicted)
	}
}

func TestConnectionLimiterRemoveUnknownClient(t *testing.T) {
	cl := NewConnectionLimiter(1)
	cl.Remove("nonexistent") // must not panic
}

func TestIsLocalIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.53", true},
		{"::1", true},
		{"192.168.1.100", false},
		{"10.0.0.1", false},
		{"0.0.0.0", false},
		{"not-an-ip", false},
	}

	for _, tc := range tests {
		if got := isLocalIP(tc.ip); got != tc.want {
			t.Errorf("isLocalIP(%q) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}
