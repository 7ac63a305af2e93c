package bucketsinit

import "testing"

func TestBroadcasterFanOutToMultipleSubscribers(t *testing.T) {
	var b broadcaster
	a := b.Subscribe()
	c := b.Subscribe()

	b.publish(Event{Signal: SignalBucketsSetupDone})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Signal != SignalBucketsSetupDone {
			t.Fatalf("got %v", ev.Signal)
		}
	}
}

func TestBroadcasterClosesChannelOnDone(t *testing.T) {
	var b broadcaster
	sub := b.Subscribe()
	b.publish(Event{Signal: SignalDone})

	ev, ok := <-sub
	if !ok || ev.Signal != SignalDone {
		t.Fatalf("expected to receive SignalDone before closure")
	}
	if _, ok := <-sub; ok {
		t.Fatalf("expected channel to be closed after SignalDone")
	}
}

func TestBroadcasterClosesChannelOnError(t *testing.T) {
	var b broadcaster
	sub := b.Subscribe()
	b.publish(Event{Signal: SignalError, Err: errBoom})

	ev := <-sub
	if ev.Signal != SignalError || ev.Err != errBoom {
		t.Fatalf("got %v", ev)
	}
	if _, ok := <-sub; ok {
		t.Fatalf("expected channel to be closed after SignalError")
	}
}
