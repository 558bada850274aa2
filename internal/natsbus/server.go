package natsbus

import (
	"fmt"
	"os"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Bus is the embedded NATS server every dashboard component publishes
// its events to. It only listens on loopback.
type Bus struct {
	server *natsserver.Server
	cfg    config.NATSConfig
}

func New(cfg config.NATSConfig) (*Bus, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create nats data dir: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = natsserver.RANDOM_PORT
	}

	opts := &natsserver.Options{
		Host:     "127.0.0.1",
		Port:     port,
		NoLog:    true,
		NoSigs:   true,
		StoreDir: cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Bus{
		server: ns,
		cfg:    cfg,
	}, nil
}

func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
