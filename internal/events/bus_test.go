package events

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishReachesSubscribers(t *testing.T) {
	b := newTestBus()

	var got []any
	b.Subscribe(TopicTaskStatus, func(topic string, payload any) error {
		got = append(got, payload)
		return nil
	})

	b.Publish(TopicTaskStatus, "running")
	b.Publish(TopicSkillLog, "ignored by this subscriber")

	if len(got) != 1 || got[0] != "running" {
		t.Errorf("got = %v", got)
	}
}

func TestWildcardSubscriber(t *testing.T) {
	b := newTestBus()

	var topics []string
	b.Subscribe("*", func(topic string, payload any) error {
		topics = append(topics, topic)
		return nil
	})

	b.Publish(TopicTaskStatus, nil)
	b.Publish(TopicAuditRecorded, nil)

	if len(topics) != 2 {
		t.Errorf("wildcard saw %d events", len(topics))
	}
}

func TestUnsubscribe(t *testing.T) {
	b := newTestBus()

	calls := 0
	unsub := b.Subscribe(TopicSkillLog, func(topic string, payload any) error {
		calls++
		return nil
	})

	b.Publish(TopicSkillLog, nil)
	unsub()
	b.Publish(TopicSkillLog, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newTestBus()

	delivered := 0
	b.Subscribe(TopicTaskStatus, func(topic string, payload any) error {
		return errors.New("boom")
	})
	b.Subscribe(TopicTaskStatus, func(topic string, payload any) error {
		panic("worse boom")
	})
	b.Subscribe(TopicTaskStatus, func(topic string, payload any) error {
		delivered++
		return nil
	})

	b.Publish(TopicTaskStatus, "x")

	if delivered != 1 {
		t.Errorf("healthy subscriber delivered %d times", delivered)
	}
	failures := b.Failures()
	if len(failures) != 2 {
		t.Fatalf("recorded %d failures, want 2", len(failures))
	}
	for _, f := range failures {
		if f.Topic != TopicTaskStatus || f.Err == nil {
			t.Errorf("failure = %+v", f)
		}
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	b := newTestBus()
	// must not panic
	b.Publish(TopicConfirmationPending, struct{}{})
}
