package session

import (
	"testing"
	"time"
)

func TestWatchdogFiresAfterQuietInterval(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 1)
	w := NewWatchdog(30*time.Millisecond, func() { fired <- struct{}{} })
	w.Arm()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}
}

func TestWatchdogResetDefersExpiry(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 1)
	w := NewWatchdog(80*time.Millisecond, func() { fired <- struct{}{} })
	w.Arm()

	// Keep resetting for longer than the timeout; it must not fire meanwhile.
	for i := 0; i < 6; i++ {
		time.Sleep(25 * time.Millisecond)
		select {
		case <-fired:
			t.Fatal("watchdog fired despite resets")
		default:
		}
		w.Reset()
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire after resets stopped")
	}
}

func TestWatchdogDisarm(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 1)
	w := NewWatchdog(30*time.Millisecond, func() { fired <- struct{}{} })
	w.Arm()
	w.Disarm()

	select {
	case <-fired:
		t.Fatal("watchdog fired after disarm")
	case <-time.After(150 * time.Millisecond):
	}
}
