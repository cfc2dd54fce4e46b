package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver answers from registered entries without touching the network.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService adds an entry under service.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

func (m *MockMDNSResolver) entries(service string) []*zeroconf.ServiceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*zeroconf.ServiceEntry(nil), m.services[service]...)
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	for _, entry := range m.entries(service) {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	for _, entry := range m.entries(service) {
		if entry.Instance != instance {
			continue
		}
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	return nil
}

// MockMDNSServerFactory records registrations and, when Resolver is set,
// publishes them to it.
type MockMDNSServerFactory struct {
	Resolver *MockMDNSResolver

	// Addr is the address placed in published entries.
	// Default: 127.0.0.1
	Addr net.IP

	mu      sync.Mutex
	servers []*MockMDNSServer
}

// MockMDNSServer is a registration made through MockMDNSServerFactory.
type MockMDNSServer struct {
	Instance string
	Service  string
	Port     int
	Text     []string

	mu   sync.Mutex
	down bool
}

// Shutdown implements MDNSServer.
func (s *MockMDNSServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
}

// IsShutdown reports whether Shutdown was called.
func (s *MockMDNSServer) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// Register implements MDNSServerFactory.
func (f *MockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	s := &MockMDNSServer{Instance: instance, Service: service, Port: port, Text: txt}

	f.mu.Lock()
	f.servers = append(f.servers, s)
	f.mu.Unlock()

	if f.Resolver != nil {
		addr := f.Addr
		if addr == nil {
			addr = net.IPv4(127, 0, 0, 1)
		}
		entry := zeroconf.NewServiceEntry(instance, service, domain)
		entry.HostName = instance + "." + domain
		entry.Port = port
		entry.Text = txt
		entry.AddrIPv4 = []net.IP{addr}
		f.Resolver.RegisterService(service, entry)
	}
	return s, nil
}

// Servers returns all registrations made so far.
func (f *MockMDNSServerFactory) Servers() []*MockMDNSServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockMDNSServer(nil), f.servers...)
}
