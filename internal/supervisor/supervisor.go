// Package supervisor wires every component together (Config Core, Response
// Pool, Ban Store, Gateway Session, Core Session, Inbound Translator,
// Notice Engine, Command Dispatcher, Outbound Translator) and owns the
// process lifetime: the config-driven Gateway Session restart loop and the
// three-phase graceful shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/banstore"
	"github.com/nvidia/onebot-core-bridge/internal/botcache"
	"github.com/nvidia/onebot-core-bridge/internal/command"
	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/coresession"
	"github.com/nvidia/onebot-core-bridge/internal/gatewaysession"
	"github.com/nvidia/onebot-core-bridge/internal/inbound"
	"github.com/nvidia/onebot-core-bridge/internal/notice"
	"github.com/nvidia/onebot-core-bridge/internal/outbound"
	"github.com/nvidia/onebot-core-bridge/internal/respool"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

const (
	restartBackoff   = 1 * time.Second
	shutdownCoreWait = 3 * time.Second
)

// Supervisor owns every long-lived component and drives the process
// lifetime from Run.
type Supervisor struct {
	log    *slog.Logger
	cfgMgr *config.Manager
	bans   *banstore.Store

	pool       *respool.Pool
	botCache   *botcache.Cache
	meta       *inbound.MetaHandler
	translator *inbound.Translator
	dispatcher *command.Dispatcher
	outbound   *outbound.Translator
	noticeEng  *notice.Engine
	core       *coresession.Session
	router     *gatewayRouter
	sender     *outbound.Sender

	gatewayMu sync.Mutex
	gateway   *gatewaysession.Session

	restart chan struct{}
}

// New constructs a Supervisor from a loaded config manager and an opened
// ban store. Every component is wired but nothing runs until Run is
// called.
func New(log *slog.Logger, cfgMgr *config.Manager, bans *banstore.Store) *Supervisor {
	s := &Supervisor{
		log:      log,
		cfgMgr:   cfgMgr,
		bans:     bans,
		pool:     respool.New(log),
		botCache: botcache.New(),
		meta:     inbound.NewMetaHandler(log),
		outbound: outbound.New(cfgMgr),
		restart:  make(chan struct{}, 1),
	}
	s.router = newGatewayRouter(log, s.currentGateway, s.pool)
	s.translator = inbound.New(log, cfgMgr, s.router, s.botCache)
	s.dispatcher = command.New(s.router)

	snap := cfgMgr.Snapshot()
	s.core = coresession.New(log, snap.Core, s.handleCoreMessage)
	s.noticeEng = notice.New(log, bans, s.core)
	s.sender = outbound.NewSender(log, s.outbound, s.router, s.core, s.dispatcher)

	if err := cfgMgr.OnChange("gateway", func(old, new any) {
		log.Warn("gateway config changed, restarting gateway session")
		select {
		case s.restart <- struct{}{}:
		default:
		}
		s.closeGateway()
	}); err != nil {
		log.Error("failed to register gateway change callback", "err", err)
	}

	return s
}

// Run starts every component and blocks until ctx is cancelled, at which
// point it performs the three-phase graceful shutdown before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.cfgMgr.StartWatch(); err != nil {
		s.log.Error("failed to start config watcher", "err", err)
	}

	coreCtx, cancelCore := context.WithCancel(ctx)
	coreDone := make(chan error, 1)
	go func() { coreDone <- s.core.Run(coreCtx) }()

	noticeCtx, cancelNotice := context.WithCancel(ctx)
	go s.noticeEng.RunDispatcher(noticeCtx)
	go s.noticeEng.RunNaturalLiftWatcher(noticeCtx)

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		s.runGatewayWithRestart(ctx)
	}()

	<-ctx.Done()
	s.log.Info("shutting down adapter")

	// Phase 1: close the accepting socket.
	s.closeGateway()
	<-gatewayDone

	// Phase 2: stop the Core Session within a bounded deadline.
	cancelCore()
	select {
	case <-coreDone:
	case <-time.After(shutdownCoreWait):
		s.log.Debug("core session shutdown timed out")
	}

	// Phase 3: cancel remaining background tasks, waiting at most
	// shutdownCoreWait for them to stop.
	cancelNotice()
	tasksDone := make(chan struct{})
	go func() {
		defer close(tasksDone)
		s.noticeEng.Close()
		s.pool.Close()
		s.cfgMgr.StopWatch()
	}()
	select {
	case <-tasksDone:
	case <-time.After(shutdownCoreWait):
		s.log.Debug("background task shutdown timed out")
	}

	s.log.Info("adapter shut down")
	return nil
}

// runGatewayWithRestart mirrors napcat_with_restart: it runs the Gateway
// Session until it exits (cleanly, on error, or on a config-driven
// restart signal), waits a second, and starts a fresh one, until ctx is
// cancelled.
func (s *Supervisor) runGatewayWithRestart(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap := s.cfgMgr.Snapshot()
		session := gatewaysession.New(s.log, snap.Gateway.Host, snap.Gateway.Port, snap.Gateway.Token)
		s.setGateway(session)

		runCtx, cancelRun := context.WithCancel(ctx)
		pumpDone := make(chan struct{})
		go func() {
			defer close(pumpDone)
			s.pumpGatewayFrames(runCtx, session)
		}()

		err := session.Run(runCtx)
		cancelRun()
		<-pumpDone
		s.setGateway(nil)

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Error("gateway session exited", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.restart:
		case <-time.After(restartBackoff):
		}
		s.log.Info("restarting gateway session")
	}
}

// pumpGatewayFrames reads decoded frames off the session and routes each to
// the message/meta_event/notice/response handler, mirroring message_recv +
// message_process's 50ms-paced dequeue loop.
func (s *Supervisor) pumpGatewayFrames(ctx context.Context, session *gatewaysession.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-session.Frames():
			if !ok {
				return
			}
			s.routeFrame(ctx, frame)
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (s *Supervisor) routeFrame(ctx context.Context, frame map[string]any) {
	switch classify(frame) {
	case "message":
		msg, ok := s.translator.HandleRawMessage(ctx, frame)
		if ok {
			s.core.Send(msg)
		}
	case "meta_event":
		s.meta.HandleMetaEvent(ctx, frame)
	case "notice":
		s.noticeEng.HandleNotice(ctx, frame)
	case "response":
		s.pool.Deliver(frame)
	}
}

// handleCoreMessage is the Core Session's inbound handler: it routes
// Core-originated messages (chat replies, commands) to the Outbound
// Translator for delivery to the gateway.
func (s *Supervisor) handleCoreMessage(msg seg.MessageBase) {
	s.sender.HandleMessage(context.Background(), msg)
}

func (s *Supervisor) setGateway(session *gatewaysession.Session) {
	s.gatewayMu.Lock()
	s.gateway = session
	s.gatewayMu.Unlock()
}

func (s *Supervisor) currentGateway() *gatewaysession.Session {
	s.gatewayMu.Lock()
	defer s.gatewayMu.Unlock()
	return s.gateway
}

func (s *Supervisor) closeGateway() {
	if gw := s.currentGateway(); gw != nil {
		gw.Close()
	}
}
