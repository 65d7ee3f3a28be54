package orchestrator

import (
	"context"

	"github.com/rockbears/log"

	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/sdk"
)

// TriggerChannel is the cache channel where instances share their triggers.
var TriggerChannel = cache.Key("hops", "orchestrator", "trigger")

// Broadcaster is the part of a cache.Store used to share triggers.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, value interface{}) error
	Subscribe(channel string) (cache.PubSub, error)
}

type triggerMessage struct {
	WorkerID string `json:"workerID"`
	JobID    string `json:"jobID,omitempty"`
}

func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.broadcaster = b
}

// Broadcast triggers this instance then every instance listening on the
// broadcaster, so the one free to admit the job does it without waiting for
// its next tick.
func (o *Orchestrator) Broadcast(ctx context.Context, jobID string) {
	o.Trigger()
	if o.broadcaster == nil {
		return
	}
	if err := o.broadcaster.Publish(ctx, TriggerChannel, triggerMessage{WorkerID: o.config.WorkerID, JobID: jobID}); err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Warn(ctx, "orchestrator> unable to broadcast trigger for job %s: %v", jobID, err)
	}
}

// ListenTriggers triggers a tick for each trigger broadcast by another
// instance, until ctx is done.
func (o *Orchestrator) ListenTriggers(ctx context.Context) {
	if o.broadcaster == nil {
		<-ctx.Done()
		return
	}
	sub, err := o.broadcaster.Subscribe(TriggerChannel)
	if err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "orchestrator> unable to subscribe to %s: %v", TriggerChannel, err)
		return
	}
	defer sub.Unsubscribe(TriggerChannel) // nolint

	for {
		msg, err := sub.GetMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn(ctx, "orchestrator> unable to read trigger: %v", err)
			}
			return
		}
		var m triggerMessage
		if err := sdk.JSONUnmarshal([]byte(msg), &m); err != nil {
			log.Warn(ctx, "orchestrator> invalid trigger %q: %v", msg, err)
			continue
		}
		if m.WorkerID == o.config.WorkerID {
			continue
		}
		log.Debug(ctx, "orchestrator> triggered by %s for job %s", m.WorkerID, m.JobID)
		o.Trigger()
	}
}
