package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// Timeouts applied on top of the caller's context.
const (
	DefaultBrowseTimeout = 3 * time.Second
	DefaultLookupTimeout = 3 * time.Second
)

// ResolvedService is one answering model server.
type ResolvedService struct {
	InstanceName string
	HostName     string
	Port         int

	// IPs lists IPv4 addresses before IPv6.
	IPs []net.IP

	// Text is the TXT record as parsed by ParseTXT.
	Text map[string]string
}

// Addr returns a dialable host:port for the service. Link-local IPv6
// addresses are skipped since they need a zone.
func (r *ResolvedService) Addr() (string, error) {
	for _, ip := range r.IPs {
		if ip.To4() == nil && ip.IsLinkLocalUnicast() {
			continue
		}
		return net.JoinHostPort(ip.String(), strconv.Itoa(r.Port)), nil
	}
	return "", ErrNoAddresses
}

// Model decodes the TXT record.
func (r *ResolvedService) Model() (ModelTXT, error) {
	return DecodeModelTXT(r.Text)
}

// MDNSResolver queries mDNS. Implementations send to entries until they are
// done or ctx expires, and never close it.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

// zeroconf closes the channel it is given once ctx expires, so results are
// forwarded from a private channel.
func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Browse(ctx, service, domain, in); err != nil {
		return err
	}
	return forward(ctx, in, entries)
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Lookup(ctx, instance, service, domain, in); err != nil {
		return err
	}
	return forward(ctx, in, entries)
}

func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- *zeroconf.ServiceEntry) error {
	for entry := range in {
		select {
		case out <- entry:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}

// ResolverConfig configures a Resolver. Zero values select the defaults.
type ResolverConfig struct {
	MDNSResolver  MDNSResolver
	BrowseTimeout time.Duration
	LookupTimeout time.Duration
}

// Resolver finds model servers via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
}

// NewResolver creates a Resolver, opening a zeroconf client unless one is
// injected.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	return &Resolver{
		config:   config,
		resolver: resolver,
	}, nil
}

// Browse collects the model servers that answer before the browse timeout
// or ctx expires. A closed ctx is not an error.
func (r *Resolver) Browse(ctx context.Context) ([]ResolvedService, error) {
	// An earlier deadline on ctx still wins.
	ctx, cancel := context.WithTimeout(ctx, r.config.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() {
		defer close(entries)
		errc <- r.resolver.Browse(ctx, ServiceModel, DefaultDomain, entries)
	}()

	var out []ResolvedService
	seen := make(map[string]bool)
	for entry := range entries {
		if entry == nil || seen[entry.Instance] {
			continue
		}
		seen[entry.Instance] = true
		out = append(out, entryToResolvedService(entry))
	}
	if err := <-errc; err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return out, err
	}
	return out, nil
}

// Lookup resolves one model server by instance name.
func (r *Resolver) Lookup(ctx context.Context, instance string) (*ResolvedService, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(entries)
		r.resolver.Lookup(ctx, instance, ServiceModel, DefaultDomain, entries)
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc := entryToResolvedService(entry)
		return &svc, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func entryToResolvedService(entry *zeroconf.ServiceEntry) ResolvedService {
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return ResolvedService{
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          ips,
		Text:         ParseTXT(entry.Text),
	}
}
