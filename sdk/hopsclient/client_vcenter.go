package hopsclient

import (
	"context"
	"net/url"

	"github.com/hostops/hops/sdk"
)

func (c *client) VCenterList(ctx context.Context) ([]sdk.VCenter, error) {
	var vcs []sdk.VCenter
	if _, err := c.GetJSON(ctx, "/vcenter", &vcs); err != nil {
		return nil, err
	}
	return vcs, nil
}

func (c *client) VCenterSync(ctx context.Context, id, by string) (*sdk.Job, error) {
	var j sdk.Job
	if _, err := c.PostJSON(ctx, "/vcenter/"+url.PathEscape(id)+"/sync", sdk.JobActionRequest{By: by}, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
