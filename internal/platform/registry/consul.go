package registry

import (
	"context"
	"fmt"
	"strings"

	consul "github.com/hashicorp/consul/api"

	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/envutil"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// ServiceInfo describes one discovered service instance.
type ServiceInfo struct {
	ServiceID    string
	ServiceName  string
	Address      string
	Port         int
	Tags         []string
	Meta         map[string]string
	HealthStatus string
}

func (s ServiceInfo) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Address, s.Port)
}

// Registry is the discovery surface model clients resolve endpoints through.
type Registry interface {
	Register(ctx context.Context, info ServiceInfo) error
	Deregister(ctx context.Context, serviceID string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInfo, error)
	// GetHealthyService returns the first passing instance of the named
	// service, or ErrServiceUnavailable when none exist.
	GetHealthyService(ctx context.Context, serviceName string) (ServiceInfo, error)
}

type consulRegistry struct {
	log    *logger.Logger
	client *consul.Client
}

func NewConsulRegistry(log *logger.Logger) (Registry, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = envutil.Str("CONSUL_ADDR", "localhost:8500")

	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	serviceLog := log.With("service", "ConsulRegistry")
	serviceLog.Info("Consul registry configured", "addr", cfg.Address)
	return &consulRegistry{log: serviceLog, client: client}, nil
}

func (r *consulRegistry) Register(ctx context.Context, info ServiceInfo) error {
	if strings.TrimSpace(info.ServiceName) == "" {
		return fmt.Errorf("register: %w: service name required", errs.ErrInvalidArgument)
	}
	reg := &consul.AgentServiceRegistration{
		ID:      info.ServiceID,
		Name:    info.ServiceName,
		Address: info.Address,
		Port:    info.Port,
		Tags:    info.Tags,
		Meta:    info.Meta,
	}
	if err := r.client.Agent().ServiceRegisterOpts(reg, consul.ServiceRegisterOpts{}.WithContext(ctx)); err != nil {
		return fmt.Errorf("register service %s: %w", info.ServiceName, err)
	}
	r.log.Info("Service registered", "name", info.ServiceName, "id", info.ServiceID)
	return nil
}

func (r *consulRegistry) Deregister(ctx context.Context, serviceID string) error {
	if err := r.client.Agent().ServiceDeregisterOpts(serviceID, (&consul.QueryOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("deregister service %s: %w", serviceID, err)
	}
	r.log.Info("Service deregistered", "id", serviceID)
	return nil
}

func (r *consulRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInfo, error) {
	entries, _, err := r.client.Health().Service(serviceName, "", true, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discover service %s: %w", serviceName, err)
	}
	infos := make([]ServiceInfo, 0, len(entries))
	for _, entry := range entries {
		address := entry.Service.Address
		if address == "" {
			address = entry.Node.Address
		}
		infos = append(infos, ServiceInfo{
			ServiceID:    entry.Service.ID,
			ServiceName:  entry.Service.Service,
			Address:      address,
			Port:         entry.Service.Port,
			Tags:         entry.Service.Tags,
			Meta:         entry.Service.Meta,
			HealthStatus: entry.Checks.AggregatedStatus(),
		})
	}
	return infos, nil
}

func (r *consulRegistry) GetHealthyService(ctx context.Context, serviceName string) (ServiceInfo, error) {
	infos, err := r.Discover(ctx, serviceName)
	if err != nil {
		return ServiceInfo{}, err
	}
	if len(infos) == 0 {
		return ServiceInfo{}, fmt.Errorf("service %s: %w", serviceName, errs.ErrServiceUnavailable)
	}
	return infos[0], nil
}
