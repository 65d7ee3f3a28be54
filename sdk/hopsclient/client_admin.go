package hopsclient

import (
	"context"
	"fmt"
)

type maintenance struct {
	Enabled bool `json:"enabled"`
}

func (c *client) AdminMaintenance(ctx context.Context) (bool, error) {
	var m maintenance
	if _, err := c.GetJSON(ctx, "/admin/maintenance", &m); err != nil {
		return false, err
	}
	return m.Enabled, nil
}

func (c *client) AdminSetMaintenance(ctx context.Context, enable bool) error {
	_, err := c.PostJSON(ctx, fmt.Sprintf("/admin/maintenance?enable=%t", enable), nil, nil)
	return err
}
