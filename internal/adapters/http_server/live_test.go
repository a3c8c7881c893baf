package httpserver_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"review_pulse/internal/alerts"
	"review_pulse/internal/domain"
)

type chanSub struct {
	events chan domain.ChangeEvent
	once   sync.Once
	closed chan struct{}
}

func (s *chanSub) Events() <-chan domain.ChangeEvent { return s.events }
func (s *chanSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type chanSource struct {
	subs chan *chanSub
}

func (c *chanSource) Subscribe(ctx context.Context, table, eventType string, onStatus func(domain.SubscriptionStatus, error)) (domain.Subscription, error) {
	s := &chanSub{events: make(chan domain.ChangeEvent, 8), closed: make(chan struct{})}
	onStatus(domain.StatusConnected, nil)
	c.subs <- s
	return s, nil
}

func readUpdate(t *testing.T, conn *websocket.Conn, want string) alerts.Update {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		var u alerts.Update
		if err := json.Unmarshal(msg, &u); err != nil {
			t.Fatalf("decode update: %v", err)
		}
		if u.Type == want {
			return u
		}
	}
}

func TestLiveAlerts_SnapshotThenRealtimeMerge(t *testing.T) {
	repo := seededRepo()
	src := &chanSource{subs: make(chan *chanSub, 1)}
	ts := newTestServer(t, repo, src, nil, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/alerts/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	snap := readUpdate(t, conn, alerts.UpdateSnapshot)
	if len(snap.Alerts) != 1 || snap.Alerts[0].ReviewID != "a" || snap.Threshold != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	var sub *chanSub
	select {
	case sub = <-src.subs:
	case <-time.After(time.Second):
		t.Fatalf("no subscription opened")
	}

	// above threshold, filtered out
	sub.events <- domain.ChangeEvent{Table: domain.TableSentiments, Type: domain.EventInsert, New: map[string]any{"review_id": "b", "score": 3.0}}
	// boundary score, merged
	sub.events <- domain.ChangeEvent{Table: domain.TableSentiments, Type: domain.EventInsert, New: map[string]any{"review_id": "b", "score": 2.0}}

	u := readUpdate(t, conn, alerts.UpdateAlert)
	if u.Alert == nil || u.Alert.ReviewID != "b" || *u.Alert.Score != 2 {
		t.Fatalf("unexpected alert update: %+v", u.Alert)
	}

	// client leaves: the subscription must be released
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-sub.closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription not closed after disconnect")
	}
}
