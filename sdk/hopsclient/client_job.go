package hopsclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hostops/hops/sdk"
)

func (c *client) JobSubmit(ctx context.Context, s sdk.JobSubmission) (*sdk.Job, error) {
	var j sdk.Job
	if _, err := c.PostJSON(ctx, "/job", s, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *client) JobList(ctx context.Context, limit int, statuses ...sdk.JobStatus) ([]sdk.Job, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	for _, s := range statuses {
		v.Add("status", string(s))
	}
	path := "/job"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var jobs []sdk.Job
	if _, err := c.GetJSON(ctx, path, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *client) JobGet(ctx context.Context, id string) (*sdk.JobDetails, error) {
	var j sdk.JobDetails
	if _, err := c.GetJSON(ctx, "/job/"+url.PathEscape(id), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *client) JobSteps(ctx context.Context, id string) ([]sdk.JobStep, error) {
	var steps []sdk.JobStep
	if _, err := c.GetJSON(ctx, "/job/"+url.PathEscape(id)+"/step", &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (c *client) JobEvents(ctx context.Context, id string, limit int) ([]sdk.JobEvent, error) {
	path := "/job/" + url.PathEscape(id) + "/event"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var events []sdk.JobEvent
	if _, err := c.GetJSON(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *client) jobAction(ctx context.Context, id, action, by string) (*sdk.Job, error) {
	var j sdk.Job
	path := fmt.Sprintf("/job/%s/%s", url.PathEscape(id), action)
	if _, err := c.PostJSON(ctx, path, sdk.JobActionRequest{By: by}, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *client) JobApprove(ctx context.Context, id, by string) (*sdk.Job, error) {
	return c.jobAction(ctx, id, "approve", by)
}

func (c *client) JobPause(ctx context.Context, id, by string) (*sdk.Job, error) {
	return c.jobAction(ctx, id, "pause", by)
}

func (c *client) JobResume(ctx context.Context, id, by string) (*sdk.Job, error) {
	return c.jobAction(ctx, id, "resume", by)
}

func (c *client) JobCancel(ctx context.Context, id, by string) (*sdk.Job, error) {
	return c.jobAction(ctx, id, "cancel", by)
}
