package connectivity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"

	// nmConnectedGlobal is NM_STATE_CONNECTED_GLOBAL.
	nmConnectedGlobal uint32 = 70
)

// NetworkManagerSource follows NetworkManager's global state over the D-Bus
// system bus.
type NetworkManagerSource struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// NewNetworkManagerSource connects to the system bus and checks that
// NetworkManager answers.
func NewNetworkManagerSource(logger *slog.Logger) (*NetworkManagerSource, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	s := &NetworkManagerSource{conn: conn, logger: logger}
	if _, err := s.state(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Name implements Source.
func (s *NetworkManagerSource) Name() string { return "networkmanager" }

// Run reports the current state, then every StateChanged signal.
func (s *NetworkManagerSource) Run(ctx context.Context, report func(online bool)) error {
	defer s.conn.Close()

	rule := fmt.Sprintf("type='signal',path='%s',interface='%s',member='StateChanged'", nmPath, nmInterface)
	if call := s.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return fmt.Errorf("subscribe StateChanged: %w", call.Err)
	}

	signals := make(chan *dbus.Signal, 8)
	s.conn.Signal(signals)
	defer s.conn.RemoveSignal(signals)

	st, err := s.state()
	if err != nil {
		return err
	}
	report(st == nmConnectedGlobal)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus closed")
			}
			if sig.Name != nmInterface+".StateChanged" || len(sig.Body) == 0 {
				continue
			}
			st, ok := sig.Body[0].(uint32)
			if !ok {
				s.logger.Warn("unexpected StateChanged payload", "body", sig.Body)
				continue
			}
			report(st == nmConnectedGlobal)
		}
	}
}

func (s *NetworkManagerSource) state() (uint32, error) {
	v, err := s.conn.Object(nmService, nmPath).GetProperty(nmInterface + ".State")
	if err != nil {
		return 0, fmt.Errorf("read NetworkManager state: %w", err)
	}
	st, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("NetworkManager state has type %T", v.Value())
	}
	return st, nil
}
