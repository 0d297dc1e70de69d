// Package registry provides the etcd-based implementation of the Registry
// interface.
//
// etcd is a distributed key-value store that provides strong consistency
// (Raft protocol). We use it as the coordination service described in
// spec.md §6: a persistent node per ServiceKey, holding ephemeral children
// whose lifetime is tied to the registering process's session.
//
//	Key:   {registryRoot}/{ServiceKey}/address-{seq}   (registryRoot = "/mini-rpc")
//	Value: instance address ("host:port")
//
// etcd has no native ephemeral-SEQUENTIAL primitive (unlike the
// coordination service spec.md §6 describes, modeled on ZooKeeper).
// Ephemeral is native (lease + KeepAlive, exactly as before); sequential is
// emulated by suffixing the key with the lease ID rendered as a fixed-width
// decimal — etcd allocates lease IDs from a monotonically increasing
// internal counter, so the suffix is sequential in the same sense the spec
// requires (see DESIGN.md Open Question 3).
package registry

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/mayingwei/MyRPC/errs"
)

const registryRoot = "/mini-rpc"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	log    *zap.Logger
}

// EtcdRegistryOption configures an EtcdRegistry at construction time.
type EtcdRegistryOption func(*EtcdRegistry)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) EtcdRegistryOption {
	return func(r *EtcdRegistry) { r.log = l }
}

// NewEtcdRegistry creates a new registry connected to the given etcd
// endpoints. It sets no dial or connection timeout on the etcd client (the
// client library's defaults apply); the session lifetime of each
// registration is the ttl passed to Register.
func NewEtcdRegistry(endpoints []string, opts ...EtcdRegistryOption) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindRegistrySession, err)
	}
	r := &EtcdRegistry{client: c, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func serviceDir(serviceKey string) string {
	return fmt.Sprintf("%s/%s", registryRoot, serviceKey)
}

// ensurePersistent creates a persistent marker key for path if it doesn't
// already exist, per spec.md §4.5 steps 1–2 ("Ensure persistent path
// exists; create if missing").
func (r *EtcdRegistry) ensurePersistent(ctx context.Context, path string) error {
	resp, err := r.client.Get(ctx, path, clientv3.WithCountOnly())
	if err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}
	if resp.Count > 0 {
		return nil
	}
	if _, err := r.client.Put(ctx, path, ""); err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}
	return nil
}

// Register adds a service instance to etcd under an ephemeral,
// sequentially-suffixed child of the persistent serviceKey node.
//
// Flow (spec.md §4.5):
//  1. Ensure the registryRoot marker exists.
//  2. Ensure the serviceKey's persistent node exists.
//  3. Create a lease-scoped (ephemeral) child named address-<seq>.
func (r *EtcdRegistry) Register(serviceKey string, instance ServiceInstance, ttl int64) error {
	ctx := context.Background()

	if err := r.ensurePersistent(ctx, registryRoot); err != nil {
		return err
	}
	dir := serviceDir(serviceKey)
	if err := r.ensurePersistent(ctx, dir); err != nil {
		return err
	}

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}

	key := fmt.Sprintf("%s/address-%020d", dir, lease.ID)
	if _, err := r.client.Put(ctx, key, instance.Addr, clientv3.WithLease(lease.ID)); err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}

	// Consume KeepAlive responses so the channel never fills and blocks
	// etcd's background renewal.
	go func() {
		for range ch {
		}
		r.log.Info("registry lease ended", zap.String("serviceKey", serviceKey), zap.String("addr", instance.Addr))
	}()

	r.log.Info("registered service instance", zap.String("serviceKey", serviceKey), zap.String("addr", instance.Addr), zap.Int64("ttl", ttl))
	return nil
}

// Deregister removes every ephemeral child under serviceKey whose payload
// matches addr. Called during graceful shutdown before closing the
// listener. The persistent serviceKey node itself is left in place — a
// session loss (or explicit deregister) removes only endpoint children.
func (r *EtcdRegistry) Deregister(serviceKey string, addr string) error {
	ctx := context.Background()
	dir := serviceDir(serviceKey)

	resp, err := r.client.Get(ctx, dir+"/", clientv3.WithPrefix())
	if err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}
	for _, kv := range resp.Kvs {
		if string(kv.Value) == addr {
			if _, err := r.client.Delete(ctx, string(kv.Key)); err != nil {
				return errs.Wrap(errs.KindRegistrySession, err)
			}
		}
	}
	r.log.Info("deregistered service instance", zap.String("serviceKey", serviceKey), zap.String("addr", addr))
	return nil
}

// Watch monitors a serviceKey's children in etcd and emits updated
// instance lists whenever changes occur (new registrations,
// deregistrations, lease expirations). Uses etcd's Watch API (server-push)
// rather than polling.
func (r *EtcdRegistry) Watch(serviceKey string) <-chan []ServiceInstance {
	ctx := context.Background()
	ch := make(chan []ServiceInstance, 1)
	prefix := serviceDir(serviceKey) + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(serviceKey)
			if err != nil {
				r.log.Warn("watch: discover failed", zap.String("serviceKey", serviceKey), zap.Error(err))
				continue
			}
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a serviceKey by
// listing children under its persistent node. Only ephemeral address
// children are returned — the persistent marker at dir itself carries an
// empty payload and is skipped.
func (r *EtcdRegistry) Discover(serviceKey string) ([]ServiceInstance, error) {
	ctx := context.Background()
	dir := serviceDir(serviceKey)

	exists, err := r.client.Get(ctx, dir, clientv3.WithCountOnly())
	if err != nil {
		return nil, errs.Wrap(errs.KindRegistrySession, err)
	}
	if exists.Count == 0 {
		return nil, errs.NoSuchService(serviceKey)
	}

	resp, err := r.client.Get(ctx, dir+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, errs.Wrap(errs.KindRegistrySession, err)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if len(kv.Value) == 0 {
			continue
		}
		instances = append(instances, ServiceInstance{Addr: string(kv.Value)})
	}
	if len(instances) == 0 {
		return nil, errs.NoProviders(serviceKey)
	}
	return instances, nil
}
