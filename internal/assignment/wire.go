package assignment

import (
	"time"

	"github.com/gogo/protobuf/proto"

	"regioncore/pkg/region"
)

// regionStateNode is the coord-store payload for an /unassigned node:
// the region's current state, the server claiming or reporting it, and
// when that claim was made. It is hand-tagged protobuf, encoded with
// gogo/protobuf without running protoc.
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

// encodeNode packs an unassigned node's payload for the coord-store.
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
