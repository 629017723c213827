package eventbus

import "testing"

func TestPublishRespectsPrefixes(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	pages, unsubPages := b.Subscribe(4, "overlay.")
	defer unsubPages()

	b.Publish(Event{Type: "overlay.page.opened"})
	b.Publish(Event{Type: "chatlog.delivered"})

	if len(all) != 2 {
		t.Fatalf("all subscriber got %d events, want 2", len(all))
	}
	if len(pages) != 1 {
		t.Fatalf("prefix subscriber got %d events, want 1", len(pages))
	}
	ev := <-pages
	if ev.Type != "overlay.page.opened" || ev.Time.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if len(ch) != 1 {
		t.Fatalf("queue len = %d, want 1", len(ch))
	}
	unsub()
	unsub()
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "c"})
}
