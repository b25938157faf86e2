// Package rpcapi defines the Master-to-RegionServer control plane: the
// wire types and hand-rolled grpc.ServiceDesc a RegionServer registers to
// receive open/close/split instructions, plus a client that adapts them to
// the assignment package's RPCClient contract. Every RPC here is
// idempotent: a RegionServer that receives the same OpenRegion twice (a
// retried call racing a slow first attempt) must treat the second as a
// no-op rather than double-opening.
package rpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// OpenRegionRequest asks a RegionServer to bring a region online.
type OpenRegionRequest struct {
	Table     string
	StartKey  []byte
	EndKey    []byte
	RegionID  int64
	Favorited bool
}

type OpenRegionResponse struct {
	AlreadyOpen bool
}

// CloseRegionRequest asks a RegionServer to close a region it currently
// hosts, optionally because it's being moved to DestinationServer.
type CloseRegionRequest struct {
	Table              string
	StartKey           []byte
	EndKey             []byte
	RegionID           int64
	DestinationServer  string
	HasDestinationHint bool
}

type CloseRegionResponse struct {
	AlreadyClosed bool
}

// SplitRegionRequest asks a RegionServer to split a region it hosts at
// SplitRow, or to let the RegionServer pick its own split point when
// SplitRow is empty.
type SplitRegionRequest struct {
	Table    string
	StartKey []byte
	EndKey   []byte
	RegionID int64
	SplitRow []byte
}

type SplitRegionResponse struct{}

type FlushRegionRequest struct {
	Table    string
	StartKey []byte
	EndKey   []byte
	RegionID int64
}

type FlushRegionResponse struct{}

type CompactRegionRequest struct {
	Table    string
	StartKey []byte
	EndKey   []byte
	RegionID int64
	Major    bool
}

type CompactRegionResponse struct{}

// RegionAdminServer is implemented by the RegionServer side: the set of
// control-plane calls a Master issues against a hosted region. Flush and
// compact are carried for completeness with the admin surface but are not
// part of the assignment state machine.
type RegionAdminServer interface {
	OpenRegion(context.Context, *OpenRegionRequest) (*OpenRegionResponse, error)
	CloseRegion(context.Context, *CloseRegionRequest) (*CloseRegionResponse, error)
	SplitRegion(context.Context, *SplitRegionRequest) (*SplitRegionResponse, error)
	FlushRegion(context.Context, *FlushRegionRequest) (*FlushRegionResponse, error)
	CompactRegion(context.Context, *CompactRegionRequest) (*CompactRegionResponse, error)
}

type UnimplementedRegionAdminServer struct{}

func (UnimplementedRegionAdminServer) OpenRegion(context.Context, *OpenRegionRequest) (*OpenRegionResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedRegionAdminServer) CloseRegion(context.Context, *CloseRegionRequest) (*CloseRegionResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedRegionAdminServer) SplitRegion(context.Context, *SplitRegionRequest) (*SplitRegionResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedRegionAdminServer) FlushRegion(context.Context, *FlushRegionRequest) (*FlushRegionResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedRegionAdminServer) CompactRegion(context.Context, *CompactRegionRequest) (*CompactRegionResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type regionAdminServerWrapper interface {
	RegionAdminServer
}

var regionAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: "regioncore.rpcapi.RegionAdmin",
	HandlerType: (*regionAdminServerWrapper)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenRegion", Handler: _RegionAdmin_OpenRegion_Handler},
		{MethodName: "CloseRegion", Handler: _RegionAdmin_CloseRegion_Handler},
		{MethodName: "SplitRegion", Handler: _RegionAdmin_SplitRegion_Handler},
		{MethodName: "FlushRegion", Handler: _RegionAdmin_FlushRegion_Handler},
		{MethodName: "CompactRegion", Handler: _RegionAdmin_CompactRegion_Handler},
	},
}

// RegisterRegionAdminServer registers srv with s under the RegionAdmin
// service name, the same grpc.Server.RegisterService path a generated
// stub would use.
func RegisterRegionAdminServer(s *grpc.Server, srv RegionAdminServer) {
	s.RegisterService(&regionAdminServiceDesc, srv)
}

func _RegionAdmin_OpenRegion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(OpenRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegionAdminServer).OpenRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/regioncore.rpcapi.RegionAdmin/OpenRegion"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegionAdminServer).OpenRegion(ctx, req.(*OpenRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RegionAdmin_CloseRegion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CloseRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegionAdminServer).CloseRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/regioncore.rpcapi.RegionAdmin/CloseRegion"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegionAdminServer).CloseRegion(ctx, req.(*CloseRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RegionAdmin_SplitRegion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SplitRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegionAdminServer).SplitRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/regioncore.rpcapi.RegionAdmin/SplitRegion"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegionAdminServer).SplitRegion(ctx, req.(*SplitRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RegionAdmin_FlushRegion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FlushRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegionAdminServer).FlushRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/regioncore.rpcapi.RegionAdmin/FlushRegion"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegionAdminServer).FlushRegion(ctx, req.(*FlushRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RegionAdmin_CompactRegion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CompactRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegionAdminServer).CompactRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/regioncore.rpcapi.RegionAdmin/CompactRegion"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegionAdminServer).CompactRegion(ctx, req.(*CompactRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}
