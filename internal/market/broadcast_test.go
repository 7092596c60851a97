// FILE: internal/market/broadcast_test.go
package market

import "testing"

func TestBehaviorSubjectReplaysLastValue(t *testing.T) {
	subj := NewBehaviorSubject(1)
	ch := subj.Subscribe()
	if v := <-ch; v != 1 {
		t.Fatalf("Subscribe() initial value = %d, want 1", v)
	}

	subj.Next(2)
	if v := <-ch; v != 2 {
		t.Fatalf("after Next(2), received = %d, want 2", v)
	}
	if subj.Value() != 2 {
		t.Fatalf("Value() = %d, want 2", subj.Value())
	}
}

func TestBehaviorSubjectLateSubscriberSeesCurrent(t *testing.T) {
	subj := NewBehaviorSubject("a")
	subj.Next("b")
	subj.Next("c")

	ch := subj.Subscribe()
	if v := <-ch; v != "c" {
		t.Fatalf("late subscriber got %q, want %q", v, "c")
	}
}

func TestBehaviorSubjectCoalescesForSlowSubscriber(t *testing.T) {
	subj := NewBehaviorSubject(0)
	ch := subj.Subscribe()
	<-ch // drain initial value

	// Publish several times without the subscriber reading in between;
	// the buffered-1 channel must coalesce to the latest value rather than
	// blocking Next or building a backlog.
	subj.Next(1)
	subj.Next(2)
	subj.Next(3)

	if v := <-ch; v != 3 {
		t.Fatalf("coalesced receive = %d, want latest value 3", v)
	}
}
