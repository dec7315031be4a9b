package service_test

import (
	"testing"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	"laborwatch/internal/modules/contraction/service"
)

func feedEvent(seconds int) domain.Event {
	return domain.Event{StartedAt: t0, Duration: time.Duration(seconds) * time.Second, RecordedAt: t0, Status: domain.Calm}
}

func TestFeedSubscribeReceivesUpdates(t *testing.T) {
	t.Parallel()
	feed := service.NewFeed(domain.Cumulative)
	updates, cancel := feed.Subscribe(4)
	defer cancel()

	feed.Append(feedEvent(60), domain.Calm)
	feed.Append(feedEvent(90), domain.Approaching)

	first := <-updates
	second := <-updates
	if first.Point != (domain.Point{X: 1, Y: 60}) || second.Point != (domain.Point{X: 2, Y: 150}) {
		t.Fatalf("unexpected points %+v %+v", first.Point, second.Point)
	}
	if second.Level != domain.Approaching || second.Len != 2 || second.Mode != domain.Cumulative {
		t.Fatalf("unexpected update %+v", second)
	}

	feed.SetMode(domain.PerEvent)
	reload := <-updates
	if !reload.Reset || reload.Mode != domain.PerEvent {
		t.Fatalf("mode switch should publish a reload, got %+v", reload)
	}
	_, ys, mode := feed.Points()
	if mode != domain.PerEvent || ys[1] != 90 {
		t.Fatalf("unexpected points after mode switch: %v %s", ys, mode)
	}

	feed.Reset()
	if cleared := <-updates; !cleared.Reset || feed.Len() != 0 {
		t.Fatalf("reset should clear and notify, got %+v", cleared)
	}
}

func TestFeedSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	feed := service.NewFeed(domain.PerEvent)
	updates, cancel := feed.Subscribe(1)

	for i := 0; i < 5; i++ {
		feed.Append(feedEvent(60+i), domain.Calm)
	}
	if got := <-updates; got.Len != 1 {
		t.Fatalf("subscriber should keep only the first buffered update, got %+v", got)
	}

	cancel()
	cancel()
	if _, ok := <-updates; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	feed.Append(feedEvent(10), domain.Calm)
}
