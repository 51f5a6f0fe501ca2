package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/hdrlab/linstage/pkg/stage"
)

// DNS-SD parameters of networked stage controllers.
const (
	ServiceType = "_zaber._tcp"
	Domain      = "local"

	// DefaultTCPPort is used when an instance advertises port 0.
	DefaultTCPPort = 55550

	// DefaultBrowseTimeout bounds Discover.
	DefaultBrowseTimeout = 3 * time.Second
)

// BrowserConfig configures an MDNSBrowser.
type BrowserConfig struct {
	// BrowseTimeout bounds Discover. Zero means DefaultBrowseTimeout.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	Logger *slog.Logger
}

// ServiceEntry is one resolved DNS-SD instance, independent of the mDNS
// library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// Service is a networked stage controller found by browsing.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	Info      stage.DeviceInfo
}

// ToService decodes the entry's TXT identity.
func (e *ServiceEntry) ToService() (*Service, error) {
	info, err := DecodeDeviceTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	if info.Name == "" {
		info.Name = e.Instance
	}

	port := e.Port
	if port == 0 {
		port = DefaultTCPPort
	}
	svc := &Service{
		Instance:  e.Instance,
		Host:      e.Host,
		Port:      port,
		Addresses: append([]string(nil), e.Addrs...),
		Info:      info,
	}
	svc.Info.Port = svc.Endpoint()
	return svc, nil
}

// Endpoint returns the backend port for the service, "tcp://<addr>:<port>".
// The first address is preferred over the host name.
func (s *Service) Endpoint() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

func (s *Service) clone() *Service {
	c := *s
	c.Addresses = append([]string(nil), s.Addresses...)
	return &c
}

// browseFunc delivers resolved and removed entries until ctx is done, then
// closes entries.
type browseFunc func(ctx context.Context, entries, removed chan<- *ServiceEntry) error

// MDNSBrowser discovers networked stage controllers over mDNS.
type MDNSBrowser struct {
	config BrowserConfig
	logger *slog.Logger
	browse browseFunc

	mu      sync.Mutex
	stopped bool
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &MDNSBrowser{
		config:  config,
		logger:  logger.With("component", "mdns"),
		cancels: make(map[int]context.CancelFunc),
	}
	b.browse = b.zeroconfBrowse
	return b
}

// Browse streams controllers as they are found. Services are aggregated by
// instance name: addresses seen on several interfaces are merged, and an
// instance is forgotten once all its addresses are removed. The channel is
// closed when ctx is done or Stop is called.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	ctx, done, err := b.track(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *Service)
	entries := make(chan *ServiceEntry)
	removed := make(chan *ServiceEntry)

	go func() {
		defer close(out)
		defer done()

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, err := entry.ToService()
				if err != nil {
					b.logger.Debug("ignoring instance", "instance", entry.Instance, "error", err)
					continue
				}

				if existing, found := services[svc.Instance]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.Instance] = svc
				select {
				case out <- svc.clone():
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, entries, removed); err != nil {
			b.logger.Warn("browse failed", "error", err)
			done()
		}
	}()

	return out, nil
}

// Discover browses for BrowseTimeout and returns the controllers found, in
// discovery order.
func (b *MDNSBrowser) Discover(ctx context.Context) ([]stage.DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var out []stage.DeviceInfo
	for svc := range results {
		out = append(out, svc.Info)
	}
	b.logger.Info("mdns browse complete", "devices", len(out))
	return out, nil
}

// Stop ends all active browse operations. Later calls to Browse fail.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

// track derives a browse context that Stop cancels.
func (b *MDNSBrowser) track(ctx context.Context) (context.Context, context.CancelFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil, nil, fmt.Errorf("discovery: browser stopped")
	}
	ctx, cancel := context.WithCancel(ctx)
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel

	return ctx, func() {
		cancel()
		b.mu.Lock()
		delete(b.cancels, id)
		b.mu.Unlock()
	}, nil
}

// zeroconfBrowse runs a zeroconf browse and translates its entries.
func (b *MDNSBrowser) zeroconfBrowse(ctx context.Context, entries, removed chan<- *ServiceEntry) error {
	zcEntries := make(chan *zeroconf.ServiceEntry)
	zcRemoved := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(entries)
		for {
			select {
			case e, ok := <-zcEntries:
				if !ok {
					return
				}
				if !forward(ctx, entries, fromZeroconf(e)) {
					return
				}
			case e, ok := <-zcRemoved:
				if !ok {
					zcRemoved = nil
					continue
				}
				if !forward(ctx, removed, fromZeroconf(e)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return zeroconf.Browse(ctx, ServiceType, Domain, zcEntries, zcRemoved, b.browserOptions()...)
}

func forward(ctx context.Context, ch chan<- *ServiceEntry, e *ServiceEntry) bool {
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func fromZeroconf(e *zeroconf.ServiceEntry) *ServiceEntry {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return &ServiceEntry{
		Instance: e.Instance,
		Service:  e.Service,
		Domain:   e.Domain,
		Host:     e.HostName,
		Port:     uint16(e.Port),
		Text:     e.Text,
		Addrs:    addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, new []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range new {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops gone from addresses.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

var _ stage.Discoverer = (*MDNSBrowser)(nil)
