package api

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rockbears/log"

	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
)

const jobNotifyChannel = "hops_job"

// listenJobChanges triggers the orchestrator each time a job is inserted or
// changes status, on this instance or on another one sharing the database.
func (a *API) listenJobChanges(ctx context.Context) {
	l := a.DBConnectionFactory.NewListener(time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn(ctx, "listenJobChanges> listener event %d: %v", ev, err)
		}
	})
	defer l.Close() // nolint

	if err := l.Listen(jobNotifyChannel); err != nil {
		ctx = sdk.ContextWithStacktrace(ctx, err)
		log.Error(ctx, "listenJobChanges> unable to listen %s: %v", jobNotifyChannel, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.Notify:
			// nil after a reconnection, events may have been lost
			if n != nil {
				jobID, status := parseJobNotification(n.Extra)
				log.Debug(context.WithValue(ctx, hopslog.JobID, jobID), "listenJobChanges> job is %s", status)
			}
			a.Orchestrator.Trigger()
		case <-time.After(90 * time.Second):
			go l.Ping() // nolint
		}
	}
}

func parseJobNotification(payload string) (jobID string, status sdk.JobStatus) {
	i := strings.LastIndex(payload, ":")
	if i < 0 {
		return payload, ""
	}
	return payload[:i], sdk.JobStatus(payload[i+1:])
}
