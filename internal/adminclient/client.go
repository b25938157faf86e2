// Package adminclient is the thin administrative surface over the
// assignment Manager: table create/enable/disable and single-region
// move, each converted into the assign/unassign operations the
// assignment state machine already knows how to run. It is modelled on
// HBaseAdmin's own role as a command submitter rather than a second
// state machine. Every method returns once its commands have been
// issued; none waits for regions to reach OPENED or CLOSED.
package adminclient

import (
	"context"
	"fmt"
	"time"

	"regioncore/internal/assignment"
	"regioncore/pkg/region"
)

// Client issues administrative commands against one Manager. It carries
// no state of its own beyond a poll interval, which no method reads.
type Client struct {
	mgr          *assignment.Manager
	pollInterval time.Duration
}

func New(mgr *assignment.Manager) *Client {
	return &Client{mgr: mgr, pollInterval: 200 * time.Millisecond}
}

// CreateTable registers a table's initial region layout and issues an
// assign of every region across live, returning once the table state is
// ENABLED; it does not wait for the regions to open. Splitting the key space
// into the handed-in ranges is the caller's job; a real admin surface
// would derive them from a desired region count.
func (c *Client) CreateTable(ctx context.Context, table string, ranges []region.KeyRange, live []region.ServerName) error {
	regions := make([]region.Info, 0, len(ranges))
	now := time.Now().UnixMilli()
	for i, r := range ranges {
		regions = append(regions, region.Info{Table: table, Range: r, ID: region.ID(now + int64(i))})
	}
	return c.mgr.EnableTable(ctx, table, regions, live)
}

// EnableTable issues an assign of every region of a previously disabled
// table and returns once the table state is ENABLED; it does not wait
// for the regions to open.
func (c *Client) EnableTable(ctx context.Context, table string, regions []region.Info, live []region.ServerName) error {
	return c.mgr.EnableTable(ctx, table, regions, live)
}

// DisableTable issues a close of every region of a table and returns
// once the table state DISABLED is recorded; it does not wait for the
// regions to close. The sequence is not crash-durable: a Master failure
// mid-disable leaves the table state DISABLING, and neither this call
// nor Failover revisits table states.
func (c *Client) DisableTable(ctx context.Context, table string, regions []region.Info) error {
	return c.mgr.DisableTable(ctx, table, regions)
}

// Move relocates one region to a specific destination server, the
// single-region analogue of a balancer move, issued directly by an
// operator rather than computed by Balance.
func (c *Client) Move(ctx context.Context, info region.Info, destination region.ServerName) error {
	loc, found, err := c.mgr.CatalogLocationOf(info.EncodedName())
	if err != nil {
		return fmt.Errorf("adminclient: locate %s: %w", info.EncodedName(), err)
	}
	if !found {
		return fmt.Errorf("adminclient: region %s not found in catalog", info.EncodedName())
	}
	return c.mgr.Unassign(ctx, info, loc, destination)
}

// Balance triggers one balancer pass immediately rather than waiting for
// the dispatcher's periodic BalanceTick; it returns as soon as the moves
// have been issued, not once they've completed, matching balance()'s own
// asynchronous contract.
func (c *Client) Balance(ctx context.Context) {
	c.mgr.RunBalancerNow(ctx)
}
