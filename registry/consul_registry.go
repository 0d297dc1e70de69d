// Package registry also provides a Consul-based implementation of the
// Registry interface, adapted from the consulx.ConsulClient helper used
// elsewhere in the example pack for game-server service discovery.
//
// Consul has no ZooKeeper-style ephemeral node either, but it has an
// equivalent ephemeral-lifetime primitive: a TTL health check. An instance
// is registered with a TTL check and must call UpdateTTL before the TTL
// elapses or Consul marks it (and, with DeregisterCriticalServiceAfter,
// eventually removes it) as failed — the same "session loss removes the
// endpoint automatically" guarantee spec.md §3 requires from the
// coordination service, implemented with Consul's own primitives instead
// of etcd's leases.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/mayingwei/MyRPC/errs"
)

// ConsulRegistry implements the Registry interface using Consul's agent
// service registration and health-check TTL renewal.
type ConsulRegistry struct {
	client *api.Client
	log    *zap.Logger

	mu   sync.Mutex
	stop map[string]chan struct{} // serviceKey+addr -> TTL heartbeat stop channel
}

// NewConsulRegistry creates a registry backed by the Consul agent at addr
// ("" selects the library default, localhost:8500).
func NewConsulRegistry(addr string) (*ConsulRegistry, error) {
	cfg := api.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindRegistrySession, err)
	}
	return &ConsulRegistry{client: client, log: zap.NewNop(), stop: make(map[string]chan struct{})}, nil
}

func consulServiceID(serviceKey, addr string) string {
	return fmt.Sprintf("%s@%s", serviceKey, addr)
}

// Register adds a service instance with a TTL health check. A background
// goroutine calls UpdateTTL at half the TTL period to keep the check
// passing; the goroutine (and therefore the renewal) stops when Deregister
// is called or the process exits, letting Consul's
// DeregisterCriticalServiceAfter reap the registration on crash.
func (r *ConsulRegistry) Register(serviceKey string, instance ServiceInstance, ttl int64) error {
	id := consulServiceID(serviceKey, instance.Addr)
	ttlDuration := time.Duration(ttl) * time.Second

	reg := &api.AgentServiceRegistration{
		ID:   id,
		Name: serviceKey,
		Tags: []string{instance.Version},
		Meta: map[string]string{"addr": instance.Addr, "weight": fmt.Sprintf("%d", instance.Weight)},
		Check: &api.AgentServiceCheck{
			TTL:                            ttlDuration.String(),
			DeregisterCriticalServiceAfter: (ttlDuration * 3).String(),
		},
	}
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}

	stop := make(chan struct{})
	r.mu.Lock()
	r.stop[id] = stop
	r.mu.Unlock()
	go r.renewTTL(id, ttlDuration, stop)

	r.log.Info("registered service instance", zap.String("serviceKey", serviceKey), zap.String("addr", instance.Addr))
	return nil
}

func (r *ConsulRegistry) renewTTL(checkID string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.client.Agent().UpdateTTL("service:"+checkID, "", api.HealthPassing); err != nil {
				r.log.Warn("consul TTL renewal failed", zap.String("checkID", checkID), zap.Error(err))
			}
		}
	}
}

// Deregister removes a service instance and stops its TTL renewal.
func (r *ConsulRegistry) Deregister(serviceKey string, addr string) error {
	id := consulServiceID(serviceKey, addr)
	r.mu.Lock()
	if stop, ok := r.stop[id]; ok {
		close(stop)
		delete(r.stop, id)
	}
	r.mu.Unlock()
	if err := r.client.Agent().ServiceDeregister(id); err != nil {
		return errs.Wrap(errs.KindRegistrySession, err)
	}
	return nil
}

// Discover returns all healthy instances registered under serviceKey.
func (r *ConsulRegistry) Discover(serviceKey string) ([]ServiceInstance, error) {
	entries, _, err := r.client.Health().Service(serviceKey, "", true, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindRegistrySession, err)
	}
	if len(entries) == 0 {
		return nil, errs.NoProviders(serviceKey)
	}

	instances := make([]ServiceInstance, 0, len(entries))
	for _, e := range entries {
		if e.Service == nil {
			continue
		}
		addr := e.Service.Meta["addr"]
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", e.Service.Address, e.Service.Port)
		}
		var version string
		if len(e.Service.Tags) > 0 {
			version = e.Service.Tags[0]
		}
		instances = append(instances, ServiceInstance{Addr: addr, Version: version})
	}
	return instances, nil
}

// Watch polls Consul's blocking query for changes under serviceKey and
// emits the updated instance list. Consul's Health().Service supports
// long-poll blocking queries natively via QueryOptions.WaitIndex; this
// loop uses that to avoid busy-polling.
func (r *ConsulRegistry) Watch(serviceKey string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		var lastIndex uint64
		for {
			_, meta, err := r.client.Health().Service(serviceKey, "", true, &api.QueryOptions{WaitIndex: lastIndex})
			if err != nil {
				r.log.Warn("consul watch failed", zap.String("serviceKey", serviceKey), zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			lastIndex = meta.LastIndex
			instances, err := r.Discover(serviceKey)
			if err != nil {
				continue
			}
			ch <- instances
		}
	}()
	return ch
}
