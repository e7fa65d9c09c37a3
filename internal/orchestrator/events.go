package orchestrator

import "context"

// Subscribe registers an outbound event channel for a GUI connection. The
// returned func unsubscribes; slow subscribers lose messages rather than
// stalling the loop.
func (o *Orchestrator) Subscribe() (<-chan any, func()) {
	ch := make(chan any, subscriberQueueSize)

	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	return ch, func() {
		o.subMu.Lock()
		if sub, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(sub)
		}
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) broadcast(msg any) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- msg:
		default:
			o.metrics.ExchangeEvents.WithLabelValues("subscriber_dropped").Inc()
		}
	}
}

// PlaybackListener bridges playback transitions to the avatar and the
// exchange lifecycle. Register it on the playback controller.
func (o *Orchestrator) PlaybackListener() *playbackListener {
	return &playbackListener{o: o}
}

type playbackListener struct {
	o *Orchestrator
}

func (l *playbackListener) SpeakingStarted(_ uint64, _, _ string) {
	go l.o.avatar.SpeakingStarted(context.Background())
}

func (l *playbackListener) SpeakingStopped(_ uint64, tag string, _ bool) {
	go l.o.avatar.SpeakingStopped(context.Background())

	if tag == "" {
		return
	}
	// finishExchange is guarded: after an interrupt the state machine has
	// already moved on and this is a no-op.
	l.o.finishExchange(tag)
}
