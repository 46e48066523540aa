package connectivity

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// ProbeSource dials a TCP address periodically. A completed handshake counts
// as online.
type ProbeSource struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration
}

// Name implements Source.
func (p *ProbeSource) Name() string { return "probe" }

// Run probes immediately, then every Interval.
func (p *ProbeSource) Run(ctx context.Context, report func(online bool)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report(p.probe(ctx))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *ProbeSource) probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Kinds accepted by NewSource.
const (
	KindAuto           = "auto"
	KindNetworkManager = "networkmanager"
	KindProbe          = "probe"
	KindNone           = "none"
)

// NewSource picks a Source by kind. Auto prefers NetworkManager and falls
// back to probing probeAddr. None returns nil.
func NewSource(kind, probeAddr string, interval time.Duration, logger *slog.Logger) (Source, error) {
	probe := &ProbeSource{Address: probeAddr, Interval: interval}
	switch kind {
	case KindNone:
		return nil, nil
	case KindProbe:
		return probe, nil
	case KindNetworkManager:
		nm, err := NewNetworkManagerSource(logger)
		if err != nil {
			return nil, err
		}
		return nm, nil
	default:
		nm, err := NewNetworkManagerSource(logger)
		if err != nil {
			logger.Debug("NetworkManager unavailable, probing instead", "address", probeAddr, "error", err)
			return probe, nil
		}
		return nm, nil
	}
}
