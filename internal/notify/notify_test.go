package notify

import "testing"

func TestHub_FanOutAndRecent(t *testing.T) {
	h := NewHub(2)
	ch, cancel := h.Subscribe(4)
	defer cancel()

	h.Notify("Error", "first", SeverityError)
	h.Notify("Saved", "second", SeveritySuccess)
	h.Notify("Error", "third", SeverityError)

	for _, want := range []string{"first", "second", "third"} {
		got := <-ch
		if got.Message != want {
			t.Fatalf("expected %s, got %s", want, got.Message)
		}
	}

	recent := h.Recent()
	if len(recent) != 2 || recent[0].Message != "second" || recent[1].Message != "third" {
		t.Fatalf("expected last two toasts, got %+v", recent)
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(0)
	_, cancel := h.Subscribe(1)
	defer cancel()

	for i := 0; i < 10; i++ {
		h.Notify("Error", "x", SeverityError)
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	h.Notify("Error", "after cancel", SeverityError)
}
