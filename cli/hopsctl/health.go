package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hostops/hops/cli"
	"github.com/hostops/hops/sdk"
)

var healthCmd = cli.Command{
	Name:  "health",
	Short: "Check hops engine health",
}

func health() *cobra.Command {
	return cli.NewCommand(healthCmd, nil, []*cobra.Command{
		cli.NewCommand(healthStatusCmd, healthStatusRun, nil),
		cli.NewListCommand(healthQueueCmd, healthQueueRun, nil),
	})
}

var healthStatusCmd = cli.Command{
	Name:  "status",
	Short: "Show the status of each engine component",
}

func healthStatusRun(v cli.Values) error {
	s, err := client.MonStatus(context.Background())
	if err != nil {
		return err
	}
	cli.DisplayMonitoringStatus(os.Stdout, *s)
	if !s.IsOK() {
		cli.OSExit(2)
	}
	return nil
}

var healthQueueCmd = cli.Command{
	Name:  "queue",
	Short: "Show the pending jobs depth and the latest worker heartbeat",
}

func healthQueueRun(v cli.Values) (cli.ListResult, error) {
	h, err := client.MonHealth(context.Background())
	if err != nil {
		return nil, err
	}
	return cli.ListResult{queueHealthItem(*h, time.Now())}, nil
}

func queueHealthItem(h sdk.QueueHealth, now time.Time) map[string]string {
	res := map[string]string{
		"queue_depth": strconv.FormatInt(h.QueueDepth, 10),
		"worker":      "none",
		"status":      "",
		"last_seen":   "",
	}
	if hb := h.LatestHeartbeat; hb != nil {
		res["worker"] = hb.WorkerID
		res["status"] = hb.Payload.Status
		res["last_seen"] = now.Sub(hb.LastSeen).Truncate(time.Second).String() + " ago"
	}
	return res
}
