package rpcapi

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"regioncore/pkg/region"
)

type fakeRegionAdminServer struct {
	UnimplementedRegionAdminServer
	opened []OpenRegionRequest
	closed []CloseRegionRequest
}

func (f *fakeRegionAdminServer) OpenRegion(_ context.Context, in *OpenRegionRequest) (*OpenRegionResponse, error) {
	f.opened = append(f.opened, *in)
	return &OpenRegionResponse{}, nil
}

func (f *fakeRegionAdminServer) CloseRegion(_ context.Context, in *CloseRegionRequest) (*CloseRegionResponse, error) {
	f.closed = append(f.closed, *in)
	return &CloseRegionResponse{}, nil
}

func serverNameForAddr(t *testing.T, addr string) region.ServerName {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)
	return region.ServerName{Host: host, Port: port, StartCode: 1}
}

func startServer(t *testing.T, srv RegionAdminServer) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := grpc.NewServer()
	RegisterRegionAdminServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return lis.Addr().String()
}

func TestClientOpenRegionSendsRegionFields(t *testing.T) {
	fake := &fakeRegionAdminServer{}
	addr := startServer(t, fake)

	client := NewClient(2 * time.Second)
	client.dial = func(ctx context.Context, target string) (*grpc.ClientConn, error) {
		return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	defer client.Close()

	server := serverNameForAddr(t, addr)

	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 42}
	require.NoError(t, client.OpenRegion(context.Background(), server, info))

	require.Len(t, fake.opened, 1)
	require.Equal(t, "t1", fake.opened[0].Table)
	require.Equal(t, int64(42), fake.opened[0].RegionID)
}

func TestClientReusesConnectionPerAddress(t *testing.T) {
	fake := &fakeRegionAdminServer{}
	addr := startServer(t, fake)
	server := serverNameForAddr(t, addr)

	client := NewClient(2 * time.Second)
	defer client.Close()
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}

	require.NoError(t, client.OpenRegion(context.Background(), server, info))
	require.NoError(t, client.CloseRegion(context.Background(), server, info))

	client.mu.Lock()
	count := len(client.conns)
	client.mu.Unlock()
	require.Equal(t, 1, count)
}
