package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectivityWatcher_StartsOnline(t *testing.T) {
	w := NewConnectivityWatcher(acceptAll(), time.Minute)
	assert.True(t, w.Online())
}

func TestConnectivityWatcher_TriggersOnRecovery(t *testing.T) {
	w := NewConnectivityWatcher(acceptAll(), time.Minute)

	w.SetOnline(false)
	require.False(t, w.Online())
	select {
	case <-w.Triggers():
		t.Fatal("going offline must not trigger a sync")
	default:
	}

	w.SetOnline(true)
	select {
	case <-w.Triggers():
	default:
		t.Fatal("offline to online transition must trigger a sync")
	}
}

func TestConnectivityWatcher_StayingOnlineDoesNotTrigger(t *testing.T) {
	w := NewConnectivityWatcher(acceptAll(), time.Minute)

	w.SetOnline(true)
	select {
	case <-w.Triggers():
		t.Fatal("online to online is not a transition")
	default:
	}
}

func TestConnectivityWatcher_NotifyCoalesces(t *testing.T) {
	w := NewConnectivityWatcher(acceptAll(), time.Minute)

	w.Notify()
	w.Notify()
	w.Notify()

	<-w.Triggers()
	select {
	case <-w.Triggers():
		t.Fatal("pending triggers must coalesce into one")
	default:
	}
}

func TestConnectivityWatcher_RunProbes(t *testing.T) {
	client := acceptAll()
	client.setPingErr(transportErr())

	w := NewConnectivityWatcher(client, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool { return !w.Online() }, time.Second, 5*time.Millisecond)

	client.setPingErr(nil)
	require.Eventually(t, func() bool { return w.Online() }, time.Second, 5*time.Millisecond)

	select {
	case <-w.Triggers():
	case <-time.After(time.Second):
		t.Fatal("recovery observed by the prober must trigger a sync")
	}
}
