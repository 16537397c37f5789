package scanner

import (
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
)

// ServiceData is one advertised service payload.
type ServiceData struct {
	UUID string `json:"uuid"`
	Data []byte `json:"data"`
}

// Discovery is the caller-facing summary of a forwarded sighting.
type Discovery struct {
	Address          string        `json:"address"`
	LocalName        string        `json:"localName,omitempty"`
	Services         []string      `json:"services"`
	ServiceData      []ServiceData `json:"serviceData,omitempty"`
	ManufacturerData []byte        `json:"manufacturerData,omitempty"`
	TxPowerLevel     int           `json:"txPowerLevel"`
	RSSI             int           `json:"rssi"`
	Connectable      bool          `json:"connectable"`
}

// Options configures one scan session.
type Options struct {
	// ServiceFilter forwards only sightings advertising this service. Empty forwards all.
	ServiceFilter   string
	AllowDuplicates bool
	AllowList       []string
	BlockList       []string
}

// Scanner deduplicates and filters advertisement sightings for one scan session at a time.
type Scanner struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	opts    Options
	filter  string
	active  bool
	seen    *hashmap.Map[string, Discovery]
	allowed map[string]struct{}
	blocked map[string]struct{}
}

// New creates an idle scanner.
func New(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		logger: logger,
		seen:   hashmap.New[string, Discovery](),
	}
}

// Start begins a new scan session. The seen-address set is cleared.
func (s *Scanner) Start(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts = opts
	s.filter = device.CanonicalID(opts.ServiceFilter)
	s.seen = hashmap.New[string, Discovery]()
	s.allowed = addressSet(opts.AllowList)
	s.blocked = addressSet(opts.BlockList)
	s.active = true

	s.logger.WithFields(logrus.Fields{
		"filter":           s.filter,
		"allow_duplicates": opts.AllowDuplicates,
	}).Debug("Scan session started")
}

// Stop ends the scan session. Calling it again is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	s.logger.WithField("device_count", s.seen.Len()).Debug("Scan session stopped")
}

// Active reports whether a scan session is running.
func (s *Scanner) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Accept runs one sighting through deduplication and the filters.
// It returns the summary to forward and whether it should be forwarded.
func (s *Scanner) Accept(sighting device.Sighting) (Discovery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return Discovery{}, false
	}

	key := addressKey(sighting.Address)
	summary := Summarize(sighting)
	if _, loaded := s.seen.GetOrInsert(key, summary); loaded {
		if !s.opts.AllowDuplicates {
			return Discovery{}, false
		}
		s.seen.Set(key, summary)
	}

	if !s.admits(key, summary) {
		return Discovery{}, false
	}

	s.logger.WithFields(logrus.Fields{
		"address": summary.Address,
		"name":    summary.LocalName,
		"rssi":    summary.RSSI,
	}).Debug("Sighting forwarded")
	return summary, true
}

// AcceptAll applies Accept to a batched delivery, preserving order.
func (s *Scanner) AcceptAll(sightings []device.Sighting) []Discovery {
	out := make([]Discovery, 0, len(sightings))
	for _, sighting := range sightings {
		if d, ok := s.Accept(sighting); ok {
			out = append(out, d)
		}
	}
	return out
}

// Devices returns the latest summary of every address seen in the current session that passes the filters.
func (s *Scanner) Devices() []Discovery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Discovery, 0, s.seen.Len())
	s.seen.Range(func(key string, d Discovery) bool {
		if s.admits(key, d) {
			out = append(out, d)
		}
		return true
	})
	return out
}

func (s *Scanner) admits(key string, d Discovery) bool {
	if _, ok := s.blocked[key]; ok {
		return false
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[key]; !ok {
			return false
		}
	}
	if s.filter == "" {
		return true
	}
	for _, svc := range d.Services {
		if svc == s.filter {
			return true
		}
	}
	return false
}

// Summarize converts a sighting into its caller-facing form with canonical service identifiers.
func Summarize(sighting device.Sighting) Discovery {
	d := Discovery{
		Address:          sighting.Address,
		LocalName:        sighting.LocalName,
		Services:         device.CanonicalIDs(sighting.Services),
		ManufacturerData: sighting.ManufacturerData,
		TxPowerLevel:     sighting.TxPowerLevel,
		RSSI:             sighting.RSSI,
		Connectable:      sighting.Connectable(),
	}
	if d.Services == nil {
		d.Services = []string{}
	}
	for _, sd := range sighting.ServiceData {
		d.ServiceData = append(d.ServiceData, ServiceData{UUID: device.CanonicalID(sd.UUID), Data: sd.Data})
	}
	return d
}

func addressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func addressSet(addresses []string) map[string]struct{} {
	if len(addresses) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		set[addressKey(a)] = struct{}{}
	}
	return set
}
