// Package region defines the data model shared by the Master and
// RegionServers: regions, servers, and the small set of enums that
// describe where a region's authority currently lives.
package region

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ID is a region's immutable identifier: the wall-clock millisecond
// timestamp at creation time, strictly monotonic per parent across splits.
type ID int64

// KeyRange is a contiguous, half-open key range [Start, End). An empty End
// means "no upper bound".
type KeyRange struct {
	Start []byte
	End   []byte
}

// Contains reports whether key falls within [Start, End).
func (k KeyRange) Contains(key []byte) bool {
	if len(k.Start) > 0 && string(key) < string(k.Start) {
		return false
	}
	if len(k.End) > 0 && string(key) >= string(k.End) {
		return false
	}
	return true
}

// Info describes a single region: a contiguous key-range shard of a table.
type Info struct {
	Table string
	Range KeyRange
	ID    ID
	// Split is true for regions marked offline-pending-gc by a completed split.
	Split bool
	// Offline marks a region that should not be reopened (disabled table).
	Offline bool
}

// EncodedName derives the region's short name: the first 32 hex digits of
// sha256(table + "," + startKey + "," + regionId), used as its
// coord-store node suffix.
func (i Info) EncodedName() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s,%s,%d", i.Table, i.Range.Start, i.ID)))
	return hex.EncodeToString(h[:])[:32]
}

// Name is the human-readable region name: table,startKey,regionId.
func (i Info) Name() string {
	return fmt.Sprintf("%s,%s,%d", i.Table, i.Range.Start, i.ID)
}

func (i Info) String() string {
	return i.Name() + "." + i.EncodedName()[:8]
}

// ServerName identifies a RegionServer process incarnation: host:port:startCode.
// The startCode distinguishes restarts of the same host:port from each other —
// a restarted server is a different ServerName even at an unchanged address.
type ServerName struct {
	Host      string
	Port      int
	StartCode int64
}

func (s ServerName) String() string {
	return fmt.Sprintf("%s:%d:%d", s.Host, s.Port, s.StartCode)
}

// IsZero reports whether s is the empty ServerName (no server named).
func (s ServerName) IsZero() bool {
	return s.Host == "" && s.Port == 0 && s.StartCode == 0
}

// Address returns host:port, without the start code.
func (s ServerName) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ParseServerName parses the host:port:startCode form produced by String.
func ParseServerName(s string) (ServerName, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ServerName{}, fmt.Errorf("region: malformed server name %q", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return ServerName{}, fmt.Errorf("region: malformed server name %q: %w", s, err)
	}
	startCode, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ServerName{}, fmt.Errorf("region: malformed server name %q: %w", s, err)
	}
	return ServerName{Host: parts[0], Port: port, StartCode: startCode}, nil
}

// State is the coord-store-observable lifecycle of a region in transition.
type State byte

const (
	StateOffline State = iota
	StateOpening
	StateOpened
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "OFFLINE"
	case StateOpening:
		return "OPENING"
	case StateOpened:
		return "OPENED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// TableState is the persisted lifecycle of a table.
type TableState byte

const (
	TableEnabled TableState = iota
	TableDisabled
	TableEnabling
	TableDisabling
)

func (t TableState) String() string {
	switch t {
	case TableEnabled:
		return "ENABLED"
	case TableDisabled:
		return "DISABLED"
	case TableEnabling:
		return "ENABLING"
	case TableDisabling:
		return "DISABLING"
	default:
		return "UNKNOWN"
	}
}

// Plan records the Master's intent for a region: move it from an optional
// source to a destination. A zero Destination encodes "do not reopen".
type Plan struct {
	RegionName  string
	Source      ServerName
	Destination ServerName
}

// Disabled reports whether the plan encodes "do not reopen" (table disable).
func (p Plan) Disabled() bool {
	return p.Destination.IsZero()
}

// NewDaughterID derives the regionId to use for a split daughter: the
// caller-supplied "now" timestamp, clock-skew corrected so daughters always
// sort after their parent in the catalog.
func NewDaughterID(now int64, parentID ID) ID {
	if now <= int64(parentID) {
		return parentID + 1
	}
	return ID(now)
}
