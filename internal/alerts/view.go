package alerts

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"review_pulse/internal/adapters/observability"
	"review_pulse/internal/domain"
)

var ErrAlreadyActive = errors.New("alerts: view already active")

const (
	UpdateSnapshot = "snapshot"
	UpdateStatus   = "status"
	UpdateAlert    = "alert"
)

// Update is pushed to the view's owner whenever its state changes.
type Update struct {
	Type      string                    `json:"type"`
	Threshold float64                   `json:"threshold,omitempty"`
	Alerts    []domain.Alert            `json:"alerts,omitempty"`
	Alert     *domain.Alert             `json:"alert,omitempty"`
	Status    domain.SubscriptionStatus `json:"status,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// State is a point-in-time copy of a view.
type State struct {
	Alerts []domain.Alert
	Err    error
	Status domain.SubscriptionStatus
}

// View owns the alert list of one active dashboard session. Activate opens the
// single realtime subscription and loads the initial list; Deactivate closes it.
// Events are merged one at a time, in delivery order.
type View struct {
	feed   *Feed
	source domain.EventSource
	notify func(Update)

	mu      sync.Mutex
	active  bool
	alerts  []domain.Alert
	loadErr error
	status  domain.SubscriptionStatus
	cancel  context.CancelFunc
	sub     domain.Subscription
	wg      sync.WaitGroup
}

func NewView(feed *Feed, source domain.EventSource, notify func(Update)) *View {
	if notify == nil {
		notify = func(Update) {}
	}
	return &View{feed: feed, source: source, notify: notify, alerts: []domain.Alert{}}
}

// Activate subscribes first and then runs the initial load, so inserts that land
// while the load is in flight are buffered and merged afterwards.
func (v *View) Activate(ctx context.Context) error {
	v.mu.Lock()
	if v.active {
		v.mu.Unlock()
		return ErrAlreadyActive
	}
	vctx, cancel := context.WithCancel(ctx)
	v.active = true
	v.cancel = cancel
	v.status = domain.StatusConnecting
	v.mu.Unlock()

	v.notify(Update{Type: UpdateStatus, Status: domain.StatusConnecting})

	sub, err := v.source.Subscribe(vctx, domain.TableSentiments, domain.EventInsert, v.onStatus)
	if err != nil {
		log.Error().Err(err).Msg("realtime subscribe failed")
		if v.State().Status == domain.StatusConnecting {
			v.onStatus(domain.StatusError, err)
		}
	}

	alerts, loadErr := v.feed.Load(vctx)
	if loadErr != nil {
		log.Error().Err(loadErr).Msg("initial alert load failed")
	}

	v.mu.Lock()
	if !v.active {
		// deactivated while loading
		v.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		return nil
	}
	v.sub = sub
	v.alerts = alerts
	v.loadErr = loadErr
	v.mu.Unlock()

	snap := Update{Type: UpdateSnapshot, Threshold: v.feed.Threshold(), Alerts: alerts}
	if loadErr != nil {
		snap.Error = "Failed to load alerts. Please try again later."
	}
	v.notify(snap)

	if sub != nil {
		v.wg.Add(1)
		go v.consume(vctx, sub)
	}
	return nil
}

// Deactivate cancels in-flight merges, closes the subscription and waits for
// the consumer to exit. Calling it on an inactive view is a no-op.
func (v *View) Deactivate() {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	v.active = false
	cancel, sub := v.cancel, v.sub
	v.sub = nil
	v.mu.Unlock()

	cancel()
	if sub != nil {
		if err := sub.Close(); err != nil {
			log.Warn().Err(err).Msg("realtime unsubscribe failed")
		}
	}
	v.wg.Wait()
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return State{
		Alerts: append([]domain.Alert(nil), v.alerts...),
		Err:    v.loadErr,
		Status: v.status,
	}
}

func (v *View) consume(ctx context.Context, sub domain.Subscription) {
	defer v.wg.Done()
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			v.merge(ctx, ev)
		}
	}
}

func (v *View) merge(ctx context.Context, ev domain.ChangeEvent) {
	reviewID, score, ok := v.feed.Qualifies(ev)
	if !ok {
		observability.ObserveRealtime("filtered")
		return
	}

	alert, err := v.feed.Resolve(ctx, reviewID, score)
	if ctx.Err() != nil {
		observability.ObserveRealtime("abandoned")
		return
	}
	if err != nil {
		observability.ObserveRealtime("dropped")
		log.Error().Err(err).Str("review_id", reviewID).Msg("dropping realtime alert")
		return
	}

	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	for _, a := range v.alerts {
		if a.ReviewID == alert.ReviewID {
			v.mu.Unlock()
			observability.ObserveRealtime("duplicate")
			return
		}
	}
	v.alerts = Prepend(v.alerts, alert)
	v.mu.Unlock()

	observability.ObserveRealtime("merged")
	log.Info().Str("review_id", alert.ReviewID).Float64("score", score).Msg("realtime alert merged")
	v.notify(Update{Type: UpdateAlert, Alert: &alert})
}

func (v *View) onStatus(s domain.SubscriptionStatus, err error) {
	observability.ObserveSubscription(string(s))
	switch s {
	case domain.StatusConnected:
		log.Info().Msg("realtime subscription active")
	case domain.StatusTimeout:
		log.Warn().Msg("realtime subscription timed out")
	case domain.StatusError:
		log.Error().Err(err).Msg("realtime subscription error")
	}

	// timeouts surface the same degraded indicator as errors
	if s == domain.StatusTimeout {
		s = domain.StatusError
	}

	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	v.status = s
	v.mu.Unlock()
	v.notify(Update{Type: UpdateStatus, Status: s})
}
