package rpcapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"regioncore/pkg/region"
)

// Client is the Master's view of the RegionAdmin service: a pool of lazily
// dialed connections, one per RegionServer address, reused across calls
// since a Master talks to the same handful of servers repeatedly. It
// satisfies assignment.RPCClient.
type Client struct {
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	timeout time.Duration
	dial    func(ctx context.Context, target string) (*grpc.ClientConn, error)
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		conns:   make(map[string]*grpc.ClientConn),
		timeout: timeout,
		dial: func(ctx context.Context, target string) (*grpc.ClientConn, error) {
			return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		},
	}
}

func (c *Client) connFor(ctx context.Context, server region.ServerName) (*grpc.ClientConn, error) {
	addr := server.Address()
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("rpcapi: dial %s: %w", addr, err)
	}
	c.conns[addr] = conn
	return conn, nil
}

// OpenRegion satisfies assignment.RPCClient. AlreadyOpen on the response
// is not treated as an error: the Master's own reconcile loop is what
// advances the region's state, and a duplicate open is exactly the
// idempotence this call is required to provide.
func (c *Client) OpenRegion(ctx context.Context, server region.ServerName, info region.Info) error {
	conn, err := c.connFor(ctx, server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	client := NewRegionAdminClient(conn)
	_, err = client.OpenRegion(ctx, &OpenRegionRequest{
		Table:    info.Table,
		StartKey: info.Range.Start,
		EndKey:   info.Range.End,
		RegionID: int64(info.ID),
	})
	return err
}

// CloseRegion satisfies assignment.RPCClient.
func (c *Client) CloseRegion(ctx context.Context, server region.ServerName, info region.Info) error {
	conn, err := c.connFor(ctx, server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	client := NewRegionAdminClient(conn)
	_, err = client.CloseRegion(ctx, &CloseRegionRequest{
		Table:    info.Table,
		StartKey: info.Range.Start,
		EndKey:   info.Range.End,
		RegionID: int64(info.ID),
	})
	return err
}

// SplitRegion asks server to split the region it hosts, either at
// splitRow or, when splitRow is nil, at a point the RegionServer picks
// for itself (this module's RegionServer derives it from the region's
// start and end keys).
func (c *Client) SplitRegion(ctx context.Context, server region.ServerName, info region.Info, splitRow []byte) error {
	conn, err := c.connFor(ctx, server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	client := NewRegionAdminClient(conn)
	_, err = client.SplitRegion(ctx, &SplitRegionRequest{
		Table:    info.Table,
		StartKey: info.Range.Start,
		EndKey:   info.Range.End,
		RegionID: int64(info.ID),
		SplitRow: splitRow,
	})
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.conns, addr)
	}
	return first
}

// RegionAdminClient is the client stub a generated pb.go would provide;
// hand-written here to match the hand-rolled RegionAdminServer in
// rpcapi.go.
type RegionAdminClient interface {
	OpenRegion(ctx context.Context, in *OpenRegionRequest, opts ...grpc.CallOption) (*OpenRegionResponse, error)
	CloseRegion(ctx context.Context, in *CloseRegionRequest, opts ...grpc.CallOption) (*CloseRegionResponse, error)
	SplitRegion(ctx context.Context, in *SplitRegionRequest, opts ...grpc.CallOption) (*SplitRegionResponse, error)
	FlushRegion(ctx context.Context, in *FlushRegionRequest, opts ...grpc.CallOption) (*FlushRegionResponse, error)
	CompactRegion(ctx context.Context, in *CompactRegionRequest, opts ...grpc.CallOption) (*CompactRegionResponse, error)
}

type regionAdminClient struct {
	cc *grpc.ClientConn
}

func NewRegionAdminClient(cc *grpc.ClientConn) RegionAdminClient {
	return &regionAdminClient{cc: cc}
}

func (c *regionAdminClient) OpenRegion(ctx context.Context, in *OpenRegionRequest, opts ...grpc.CallOption) (*OpenRegionResponse, error) {
	out := new(OpenRegionResponse)
	if err := c.cc.Invoke(ctx, "/regioncore.rpcapi.RegionAdmin/OpenRegion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regionAdminClient) CloseRegion(ctx context.Context, in *CloseRegionRequest, opts ...grpc.CallOption) (*CloseRegionResponse, error) {
	out := new(CloseRegionResponse)
	if err := c.cc.Invoke(ctx, "/regioncore.rpcapi.RegionAdmin/CloseRegion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regionAdminClient) SplitRegion(ctx context.Context, in *SplitRegionRequest, opts ...grpc.CallOption) (*SplitRegionResponse, error) {
	out := new(SplitRegionResponse)
	if err := c.cc.Invoke(ctx, "/regioncore.rpcapi.RegionAdmin/SplitRegion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regionAdminClient) FlushRegion(ctx context.Context, in *FlushRegionRequest, opts ...grpc.CallOption) (*FlushRegionResponse, error) {
	out := new(FlushRegionResponse)
	if err := c.cc.Invoke(ctx, "/regioncore.rpcapi.RegionAdmin/FlushRegion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regionAdminClient) CompactRegion(ctx context.Context, in *CompactRegionRequest, opts ...grpc.CallOption) (*CompactRegionResponse, error) {
	out := new(CompactRegionResponse)
	if err := c.cc.Invoke(ctx, "/regioncore.rpcapi.RegionAdmin/CompactRegion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
