package regionserver

import (
	"time"

	"github.com/gogo/protobuf/proto"

	"regioncore/pkg/region"
)

// regionStateNode mirrors the wire message the Master's assignment
// package uses for /unassigned nodes. The two sides never import each
// other; they agree only on this protobuf-tagged layout, the same way a
// RegionServer and Master in the source are separate processes sharing
// one node schema.
type regionStateNode struct {
	State          int32  `protobuf:"varint,1,opt,name=state,proto3" json:"state,omitempty"`
	OwnerHost      string `protobuf:"bytes,2,opt,name=owner_host,json=ownerHost,proto3" json:"owner_host,omitempty"`
	OwnerPort      int32  `protobuf:"varint,3,opt,name=owner_port,json=ownerPort,proto3" json:"owner_port,omitempty"`
	OwnerStartCode int64  `protobuf:"varint,4,opt,name=owner_start_code,json=ownerStartCode,proto3" json:"owner_start_code,omitempty"`
	TimestampNanos int64  `protobuf:"varint,5,opt,name=timestamp_nanos,json=timestampNanos,proto3" json:"timestamp_nanos,omitempty"`
}

func (m *regionStateNode) Reset()         { *m = regionStateNode{} }
func (m *regionStateNode) String() string { return proto.CompactTextString(m) }
func (m *regionStateNode) ProtoMessage()  {}

func encodeNode(state region.State, owner region.ServerName, ts time.Time) []byte {
	msg := &regionStateNode{
		State:          int32(state),
		OwnerHost:      owner.Host,
		OwnerPort:      int32(owner.Port),
		OwnerStartCode: owner.StartCode,
		TimestampNanos: ts.UnixNano(),
	}
	data, _ := proto.Marshal(msg)
	return data
}

func decodeNode(data []byte) (region.State, region.ServerName, time.Time, error) {
	var msg regionStateNode
	if err := proto.Unmarshal(data, &msg); err != nil {
		return 0, region.ServerName{}, time.Time{}, err
	}
	owner := region.ServerName{Host: msg.OwnerHost, Port: int(msg.OwnerPort), StartCode: msg.OwnerStartCode}
	return region.State(msg.State), owner, time.Unix(0, msg.TimestampNanos), nil
}
