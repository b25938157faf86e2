package coordstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdClient backs Client with an etcd cluster. etcd's ModRevision plays
// the role of a ZooKeeper node's version; etcd leases play the role of
// ephemeral nodes; etcd's Watch API provides the per-registration, at
// most once events this module requires: each watch delivers its first
// matching event and then closes the returned channel.
type EtcdClient struct {
	cli *clientv3.Client

	mu       sync.Mutex
	leaseID  clientv3.LeaseID
	session  *concurrency.Session
	sessSeq  int64
	leaseTTL time.Duration
}

// NewEtcdClient dials endpoints and establishes a lease-backed session
// used for every ephemeral node this client subsequently creates.
func NewEtcdClient(endpoints []string, dialTimeout, leaseTTL time.Duration) (*EtcdClient, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("coordstore: dial etcd: %w", err)
	}
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Second
	}
	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(int(leaseTTL.Seconds())))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("coordstore: create session: %w", err)
	}
	return &EtcdClient{cli: cli, session: sess, leaseID: sess.Lease(), leaseTTL: leaseTTL, sessSeq: 1}, nil
}

var _ Client = (*EtcdClient)(nil)

func (e *EtcdClient) SessionID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(e.leaseID)<<8 | e.sessSeq
}

func (e *EtcdClient) Close() error {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
	return e.cli.Close()
}

// reconnect rebuilds the lease-backed session after the current one has
// expired and bumps sessSeq so SessionID changes. It returns an error
// only when the new session cannot be created; nothing in this module
// calls it.
func (e *EtcdClient) reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, err := concurrency.NewSession(e.cli, concurrency.WithTTL(int(e.leaseTTL.Seconds())))
	if err != nil {
		return fmt.Errorf("coordstore: reconnect: %w", err)
	}
	if e.session != nil {
		_ = e.session.Close()
	}
	e.session = sess
	e.leaseID = sess.Lease()
	e.sessSeq++
	return nil
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (e *EtcdClient) Get(ctx context.Context, path string) (Node, error) {
	resp, err := e.cli.Get(ctx, path)
	if err != nil {
		return Node{}, translateErr(err)
	}
	if len(resp.Kvs) == 0 {
		return Node{}, ErrNotFound
	}
	kv := resp.Kvs[0]
	return Node{Path: path, Data: kv.Value, Version: kv.ModRevision}, nil
}

func (e *EtcdClient) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := e.cli.Get(ctx, path, clientv3.WithCountOnly())
	if err != nil {
		return false, translateErr(err)
	}
	return resp.Count > 0, nil
}

func (e *EtcdClient) Create(ctx context.Context, path string, data []byte, ephemeral bool) error {
	opts := []clientv3.OpOption{}
	if ephemeral {
		e.mu.Lock()
		lease := e.leaseID
		e.mu.Unlock()
		opts = append(opts, clientv3.WithLease(lease))
	}
	txn := e.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
		Then(clientv3.OpPut(path, string(data), opts...))
	resp, err := txn.Commit()
	if err != nil {
		return translateErr(err)
	}
	if !resp.Succeeded {
		return ErrExists
	}
	return nil
}

func (e *EtcdClient) SetData(ctx context.Context, path string, data []byte, expectedVersion int64) error {
	if expectedVersion == ForceCAS {
		_, err := e.cli.Put(ctx, path, string(data))
		return translateErr(err)
	}
	txn := e.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(path), "=", expectedVersion)).
		Then(clientv3.OpPut(path, string(data)))
	resp, err := txn.Commit()
	if err != nil {
		return translateErr(err)
	}
	if !resp.Succeeded {
		existsResp, getErr := e.cli.Get(ctx, path)
		if getErr == nil && len(existsResp.Kvs) == 0 {
			return ErrNotFound
		}
		return ErrBadVersion
	}
	return nil
}

func (e *EtcdClient) Delete(ctx context.Context, path string, expectedVersion int64) error {
	if expectedVersion == ForceCAS {
		_, err := e.cli.Delete(ctx, path)
		return translateErr(err)
	}
	txn := e.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(path), "=", expectedVersion)).
		Then(clientv3.OpDelete(path))
	resp, err := txn.Commit()
	if err != nil {
		return translateErr(err)
	}
	if !resp.Succeeded {
		getResp, getErr := e.cli.Get(ctx, path)
		if getErr == nil && len(getResp.Kvs) == 0 {
			return ErrNotFound
		}
		return ErrBadVersion
	}
	return nil
}

func (e *EtcdClient) List(ctx context.Context, path string) ([]string, error) {
	prefix := path
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	resp, err := e.cli.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, translateErr(err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, kv := range resp.Kvs {
		rest := string(kv.Key)[len(prefix):]
		name := rest
		for i, r := range rest {
			if r == '/' {
				name = rest[:i]
				break
			}
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func (e *EtcdClient) watch(ctx context.Context, path string, match func(clientv3.Event, Node) (Event, bool)) (<-chan Event, error) {
	ch := make(chan Event, 1)
	watchCh := e.cli.Watch(ctx, path)
	go func() {
		defer close(ch)
		for resp := range watchCh {
			if resp.Canceled {
				if resp.Err() != nil {
					ch <- Event{Type: EventSessionExpired, Path: path}
				}
				return
			}
			for _, wev := range resp.Events {
				node := Node{Path: path}
				if wev.Kv != nil {
					node.Data = wev.Kv.Value
					node.Version = wev.Kv.ModRevision
				}
				if ev, ok := match(*wev, node); ok {
					ch <- ev
					return
				}
			}
		}
	}()
	return ch, nil
}

func (e *EtcdClient) WatchExists(ctx context.Context, path string) (<-chan Event, error) {
	return e.watch(ctx, path, func(wev clientv3.Event, node Node) (Event, bool) {
		switch wev.Type {
		case clientv3.EventTypePut:
			if wev.IsCreate() {
				return Event{Type: EventCreated, Path: path, Node: node}, true
			}
			return Event{}, false
		case clientv3.EventTypeDelete:
			return Event{Type: EventDeleted, Path: path, Node: node}, true
		}
		return Event{}, false
	})
}

func (e *EtcdClient) WatchData(ctx context.Context, path string) (<-chan Event, error) {
	return e.watch(ctx, path, func(wev clientv3.Event, node Node) (Event, bool) {
		switch wev.Type {
		case clientv3.EventTypePut:
			return Event{Type: EventDataChanged, Path: path, Node: node}, true
		case clientv3.EventTypeDelete:
			return Event{Type: EventDeleted, Path: path, Node: node}, true
		}
		return Event{}, false
	})
}

func (e *EtcdClient) WatchChildren(ctx context.Context, path string) (<-chan Event, error) {
	prefix := path
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	ch := make(chan Event, 1)
	watchCh := e.cli.Watch(ctx, prefix, clientv3.WithPrefix())
	go func() {
		defer close(ch)
		for resp := range watchCh {
			if resp.Canceled {
				if resp.Err() != nil {
					ch <- Event{Type: EventSessionExpired, Path: path}
				}
				return
			}
			if len(resp.Events) > 0 {
				ch <- Event{Type: EventChildrenChanged, Path: path}
				return
			}
		}
	}()
	return ch, nil
}
