// Package server orchestrates all components: COMMS transport, message bus,
// service registry, status aggregator, change-event fan-out, optional status
// journal and the HTTP observer API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/service-mirror/internal/config"
	"github.com/morezero/service-mirror/pkg/bootstrap"
	"github.com/morezero/service-mirror/pkg/bus"
	"github.com/morezero/service-mirror/pkg/commsutil"
	"github.com/morezero/service-mirror/pkg/connection"
	"github.com/morezero/service-mirror/pkg/db"
	"github.com/morezero/service-mirror/pkg/events"
	"github.com/morezero/service-mirror/pkg/registry"
	"github.com/morezero/service-mirror/pkg/status"
)

const (
	logPrefix       = "server:server"
	shutdownTimeout = 5 * time.Second
)

// Server is the service-mirror orchestrator.
type Server struct {
	cfg     *config.Config
	profile *bootstrap.Profile

	nc      *comms.Conn
	monitor *connection.Monitor
	bus     *bus.Bus
	inbound *comms.Subscription
	queries *comms.Subscription

	reg     *registry.Registry
	status  *status.Aggregator
	replies *bootstrap.Replies

	pubsub    *gochannel.GoChannel
	publisher events.EventPublisher
	events    *eventLog

	pool        *pgxpool.Pool
	repo        *db.Repository
	journal     *db.Journal
	journalRepo statusJournal

	httpServer *http.Server
	closeOnce  sync.Once

	// Reconnect startups run outside the errgroup; Serve waits for them
	// before closing the bus.
	startupMu      sync.Mutex
	startups       sync.WaitGroup
	startupsClosed bool
}

// Run loads configuration, starts the server and blocks until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	SetupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting service-mirror", logPrefix))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// SetupLogging installs the default slog text handler at the given level.
func SetupLogging(level string) {
	logLevel, err := config.ParseLogLevel(level)
	if err != nil {
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// New connects to COMMS, opens the status journal when DATABASE_URL is set and
// wires every component. Inbound messages are queued from here on but not
// dispatched until Serve.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	codec, err := commsutil.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	// Step 1: Load observer profile
	profile, err := bootstrap.LoadProfile(cfg.ProfileFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load observer profile: %w", logPrefix, err)
	}
	if cfg.RuntimeName != "" {
		profile.RuntimeName = cfg.RuntimeName
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%s - invalid observer profile: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Runtime service: %s", logPrefix, profile.Runtime()))

	s := &Server{
		cfg:     cfg,
		profile: profile,
		monitor: connection.NewMonitor(false),
		status:  status.NewAggregator(),
		replies: bootstrap.NewReplies(),
		events:  newEventLog(0),
	}

	// Step 2: Connect to COMMS; the monitor follows the connection lifecycle
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, s.monitor.NATSOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	s.monitor.SetConnected(nc.IsConnected())

	// Step 3: Status journal (optional)
	if cfg.JournalEnabled() {
		if err := s.openJournal(ctx); err != nil {
			nc.Close()
			return nil, err
		}
	}

	// Step 4: Bus, registry and change-event fan-out
	transport := commsutil.NewNATSTransport(commsutil.NewNATSTransportParams{
		Conn:           nc,
		Codec:          codec,
		OutboundPrefix: cfg.OutboundPrefix,
	})
	s.bus = bus.NewBus(bus.NewBusParams{
		Transport: transport,
		Liveness:  s.monitor,
		Sender:    cfg.COMMSName,
		QueueSize: cfg.InboundQueueSize,
	})

	s.pubsub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewSlogLogger(slog.Default()))
	s.publisher = events.MultiPublisher{
		events.NewWatermillPublisher(s.pubsub),
		events.NewCommsPublisher(nc, &events.CommsPublisherOpts{SubjectPrefix: cfg.ChangeEventPrefix, Codec: codec}),
	}

	var pinger registry.Pinger
	if s.repo != nil {
		pinger = s.repo
	}
	s.reg = registry.NewRegistry(registry.NewRegistryParams{
		Bus:      s.bus,
		Factory:  profile.Factory(),
		Liveness: s.monitor,
		Pinger:   pinger,
		Config:   registry.Config{RuntimeName: profile.Runtime()},
	})
	s.wire()

	// Step 5: Subscribe to runtime messages
	sub, err := commsutil.SubscribeInbound(nc, cfg.InboundSubject, codec, s.bus.Enqueue)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.inbound = sub

	// Step 6: Answer COMMS queries
	if err := s.subscribeQueries(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Server) openJournal(ctx context.Context) error {
	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrations(s.cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	repo := db.NewRepository(pool)
	s.pool = pool
	s.repo = repo
	s.journalRepo = repo
	s.journal = db.NewJournal(repo, s.cfg.JournalQueueSize)
	slog.Info(fmt.Sprintf("%s - Status journal enabled", logPrefix))
	return nil
}

// wire attaches the registry and aggregator to the bus and bridges their
// changes to the publishers and the journal.
func (s *Server) wire() {
	var rec recorder
	if s.journal != nil {
		rec = s.journal
	}
	obs := newObserver(s.publisher, rec)
	obs.watchRegistry(s.reg)
	obs.watchStatus(s.status)

	s.reg.Attach(s.bus)
	s.status.Attach(s.bus, s.profile.Sources()...)
}

// Serve runs the dispatch loop, the journal writer and the HTTP server until
// ctx is canceled or one of them fails, then releases everything.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)

	recordEvents, err := s.events.subscribe(gctx, s.pubsub)
	if err != nil {
		return err
	}
	g.Go(recordEvents)
	g.Go(func() error { return s.bus.Run(gctx) })
	if s.journal != nil {
		g.Go(func() error { return s.journal.Run(gctx) })
	}

	// Startup requests go out now and again after every reconnect.
	s.monitor.OnConnectionChange(s.reconnectListener(gctx))
	g.Go(func() error {
		s.runStartup(gctx)
		return nil
	})

	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	slog.Info(fmt.Sprintf("%s - service-mirror is ready", logPrefix))
	err = g.Wait()
	s.stopStartups()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// reconnectListener reruns the startup requests after a reconnect. Once ctx
// is done or stopStartups has run it does nothing.
func (s *Server) reconnectListener(ctx context.Context) connection.Listener {
	return func(connected bool) {
		if !connected {
			slog.Warn(fmt.Sprintf("%s - Lost connection to runtime", logPrefix))
			return
		}
		s.startupMu.Lock()
		defer s.startupMu.Unlock()
		if s.startupsClosed || ctx.Err() != nil {
			return
		}
		s.startups.Add(1)
		go func() {
			defer s.startups.Done()
			s.runStartup(ctx)
		}()
	}
}

// stopStartups blocks new reconnect startups and waits for running ones.
func (s *Server) stopStartups() {
	s.startupMu.Lock()
	s.startupsClosed = true
	s.startupMu.Unlock()
	s.startups.Wait()
}

func (s *Server) runStartup(ctx context.Context) {
	if !s.monitor.IsConnected() {
		slog.Debug(fmt.Sprintf("%s - skipping startup requests while disconnected", logPrefix))
		return
	}
	if err := bootstrap.RunStartup(ctx, s.bus, s.profile, s.replies); err != nil {
		slog.Warn(fmt.Sprintf("%s - startup requests incomplete: %v", logPrefix, err))
	}
}

// Close releases every service, stops the bus and closes connections. It is
// safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		for _, sub := range []*comms.Subscription{s.inbound, s.queries} {
			if sub == nil {
				continue
			}
			if err := sub.Unsubscribe(); err != nil {
				slog.Warn(fmt.Sprintf("%s - unsubscribe %s: %v", logPrefix, sub.Subject, err))
			}
		}
		if s.reg != nil {
			s.reg.Close()
		}
		if s.bus != nil {
			if err := s.bus.Close(); err != nil {
				slog.Warn(fmt.Sprintf("%s - bus close: %v", logPrefix, err))
			}
		}
		if s.pubsub != nil {
			s.pubsub.Close()
		}
		if s.nc != nil {
			if err := s.nc.Drain(); err != nil {
				s.nc.Close()
			}
		}
		if s.pool != nil {
			s.pool.Close()
		}
	})
}
