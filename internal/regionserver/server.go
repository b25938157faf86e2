package regionserver

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sync"
	"time"

	"regioncore/internal/catalog"
	"regioncore/internal/rpcapi"
	"regioncore/internal/split"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// Server is one RegionServer process's assignment-facing state: its
// identity, the coord-store client it uses to report transitions, the
// set of regions it currently hosts, and the per-region handles and
// locks every RPC and split attempt must go through.
type Server struct {
	self    region.ServerName
	coord   coordstore.Client
	root    string
	dataDir string
	family  string

	online *OnlineRegions

	mu       sync.Mutex
	handles  map[string]*RegionHandle
	splitMgr *splitCoordinator
}

func NewServer(self region.ServerName, coord coordstore.Client, cat *catalog.Catalog, root, dataDir, family string) *Server {
	s := &Server{
		self:    self,
		coord:   coord,
		root:    root,
		dataDir: dataDir,
		family:  family,
		online:  NewOnlineRegions(),
		handles: make(map[string]*RegionHandle),
	}
	s.splitMgr = &splitCoordinator{server: s, cat: cat}
	return s
}

var _ rpcapi.RegionAdminServer = (*Server)(nil)

func infoFromRequestFields(table string, start, end []byte, id int64) region.Info {
	return region.Info{Table: table, Range: region.KeyRange{Start: start, End: end}, ID: region.ID(id)}
}

func (s *Server) unassignedPath(encodedName string) string {
	return path.Join(s.root, "unassigned", encodedName)
}

func (s *Server) handleFor(info region.Info) (*RegionHandle, error) {
	name := info.EncodedName()
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[name]; ok {
		return h, nil
	}
	h, err := NewRegionHandle(s.dataDir, info)
	if err != nil {
		return nil, err
	}
	s.handles[name] = h
	return h, nil
}

func (s *Server) forgetHandle(encodedName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, encodedName)
}

// OpenRegion implements rpcapi.RegionAdminServer. It is idempotent: a
// region already online is reported AlreadyOpen rather than reopened,
// since a retried RPC racing a slow first attempt must not double-open.
func (s *Server) OpenRegion(ctx context.Context, req *rpcapi.OpenRegionRequest) (*rpcapi.OpenRegionResponse, error) {
	info := infoFromRequestFields(req.Table, req.StartKey, req.EndKey, req.RegionID)
	name := info.EncodedName()

	if _, ok := s.online.Get(name); ok {
		return &rpcapi.OpenRegionResponse{AlreadyOpen: true}, nil
	}

	handle, err := s.handleFor(info)
	if err != nil {
		return nil, err
	}
	handle.Lock()
	defer handle.Unlock()

	if err := s.transitionTo(ctx, name, region.StateOpening); err != nil {
		return nil, fmt.Errorf("regionserver: claim OPENING for %s: %w", name, err)
	}

	// A real store engine would load the region's store files here.
	s.online.Add(info)

	if err := s.transitionTo(ctx, name, region.StateOpened); err != nil {
		return nil, fmt.Errorf("regionserver: report OPENED for %s: %w", name, err)
	}
	return &rpcapi.OpenRegionResponse{}, nil
}

// CloseRegion implements rpcapi.RegionAdminServer.
func (s *Server) CloseRegion(ctx context.Context, req *rpcapi.CloseRegionRequest) (*rpcapi.CloseRegionResponse, error) {
	info := infoFromRequestFields(req.Table, req.StartKey, req.EndKey, req.RegionID)
	name := info.EncodedName()

	if _, ok := s.online.Get(name); !ok {
		return &rpcapi.CloseRegionResponse{AlreadyClosed: true}, nil
	}

	handle, err := s.handleFor(info)
	if err != nil {
		return nil, err
	}
	handle.Lock()
	defer handle.Unlock()

	if err := s.transitionTo(ctx, name, region.StateClosing); err != nil {
		return nil, fmt.Errorf("regionserver: claim CLOSING for %s: %w", name, err)
	}

	if _, err := handle.Close(); err != nil {
		return nil, fmt.Errorf("regionserver: close %s: %w", name, err)
	}
	s.online.Remove(name)
	s.forgetHandle(name)

	if err := s.transitionTo(ctx, name, region.StateClosed); err != nil {
		return nil, fmt.Errorf("regionserver: report CLOSED for %s: %w", name, err)
	}
	return &rpcapi.CloseRegionResponse{}, nil
}

// SplitRegion implements rpcapi.RegionAdminServer, delegating to the
// split coordinator which drives a split.Transaction through prepare,
// execute, and rollback-on-failure.
func (s *Server) SplitRegion(ctx context.Context, req *rpcapi.SplitRegionRequest) (*rpcapi.SplitRegionResponse, error) {
	info := infoFromRequestFields(req.Table, req.StartKey, req.EndKey, req.RegionID)
	if err := s.splitMgr.split(ctx, info, req.SplitRow); err != nil {
		return nil, err
	}
	return &rpcapi.SplitRegionResponse{}, nil
}

func (s *Server) FlushRegion(_ context.Context, req *rpcapi.FlushRegionRequest) (*rpcapi.FlushRegionResponse, error) {
	info := infoFromRequestFields(req.Table, req.StartKey, req.EndKey, req.RegionID)
	handle, err := s.handleFor(info)
	if err != nil {
		return nil, err
	}
	handle.Lock()
	defer handle.Unlock()
	if err := handle.Flush(); err != nil {
		return nil, fmt.Errorf("regionserver: flush %s: %w", info.EncodedName(), err)
	}
	return &rpcapi.FlushRegionResponse{}, nil
}

func (s *Server) CompactRegion(_ context.Context, req *rpcapi.CompactRegionRequest) (*rpcapi.CompactRegionResponse, error) {
	return &rpcapi.CompactRegionResponse{}, nil
}

// transitionTo performs the owning CAS write the assignment Master
// watches for: read the current node, rewrite it with this server as
// owner and the requested state. OPENING/CLOSING claims use a real CAS
// against the last-seen version so two RegionServers racing for the same
// OFFLINE node cannot both win, and an OPENING claim on an existing node
// is refused unless that node is OFFLINE; OPENED/CLOSED reports
// force-write since this server already holds exclusive ownership by then.
func (s *Server) transitionTo(ctx context.Context, encodedName string, state region.State) error {
	p := s.unassignedPath(encodedName)
	node, err := s.coord.Get(ctx, p)
	expected := coordstore.ForceCAS
	if err == nil {
		expected = node.Version
		if state == region.StateOpening {
			if cur, _, _, decErr := decodeNode(node.Data); decErr != nil || cur != region.StateOffline {
				return fmt.Errorf("regionserver: %s is not OFFLINE, cannot claim OPENING", encodedName)
			}
		}
	} else if err != coordstore.ErrNotFound {
		return err
	}

	payload := encodeNode(state, s.self, time.Now())
	if err := s.coord.SetData(ctx, p, payload, expected); err != nil {
		if err == coordstore.ErrNotFound {
			return s.coord.Create(ctx, p, payload, false)
		}
		return err
	}
	return nil
}

// RejoinFromDisk is called once at startup, before the first RPC is
// served, to bring any region directories left on disk by an unclean
// shutdown back online and to clean up split detritus from a split that
// never finished. It does not re-announce these regions to the Master;
// the Master's own failover scan is what re-learns server contents.
func (s *Server) RejoinFromDisk(regions []region.Info) {
	for _, info := range regions {
		if err := split.CleanupDetritus(regionDirFor(s.dataDir, info)); err != nil {
			log.Printf("regionserver: cleanup split detritus for %s: %v", info.EncodedName(), err)
			continue
		}
		s.online.Add(info)
	}
}

func regionDirFor(dataDir string, info region.Info) string {
	return filepath.Join(dataDir, info.Table, info.EncodedName())
}

// Online exposes the online-regions map for heartbeat reporting.
func (s *Server) Online() *OnlineRegions { return s.online }
