// Package orchestrator wires every component into a running daemon and owns
// its startup and shutdown sequence (SPEC_FULL.md §4.18): load config,
// initialize persistence, load the token store, authenticate, build the
// shared singletons, connect the push streams, subscribe, hydrate today's
// P&L and lockouts, then run until asked to stop. Grounded on the teacher's
// cmd/server/main.go wiring sequence, generalized from a 7-database
// portfolio daemon's DI container to this daemon's single-store, single-
// rule-engine shape.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/backup"
	"github.com/riskd/sentinel-risk-daemon/internal/brokerapi"
	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/contracts"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/enforcement"
	"github.com/riskd/sentinel-risk-daemon/internal/events"
	"github.com/riskd/sentinel-risk-daemon/internal/lockout"
	"github.com/riskd/sentinel-risk-daemon/internal/logging"
	"github.com/riskd/sentinel-risk-daemon/internal/maintenance"
	"github.com/riskd/sentinel-risk-daemon/internal/persistence"
	"github.com/riskd/sentinel-risk-daemon/internal/pnltracker"
	"github.com/riskd/sentinel-risk-daemon/internal/quotes"
	"github.com/riskd/sentinel-risk-daemon/internal/router"
	"github.com/riskd/sentinel-risk-daemon/internal/rules"
	"github.com/riskd/sentinel-risk-daemon/internal/selfhealth"
	"github.com/riskd/sentinel-risk-daemon/internal/state"
	"github.com/riskd/sentinel-risk-daemon/internal/statusapi"
	"github.com/riskd/sentinel-risk-daemon/internal/stream"
	"github.com/riskd/sentinel-risk-daemon/internal/timers"
	"github.com/riskd/sentinel-risk-daemon/internal/tradecounter"
)

// App holds every long-lived component the daemon runs, assembled by New and
// torn down by Shutdown.
type App struct {
	cfg       *config.Config
	rulesCfg  *config.RulesConfig
	log       zerolog.Logger

	store      *persistence.Store
	tokenStore *brokerapi.TokenStore
	tokenMgr   *brokerapi.TokenManager
	broker     *brokerapi.Client
	bus        *events.Bus
	streamMgr  *stream.Manager
	rt         *router.Router
	pnl        *pnltracker.Tracker
	lockouts   *lockout.Manager

	maintSched *maintenance.Scheduler
	backupSvc  *backup.Service
	statusSrv  *statusapi.Server
	health     *selfhealth.Monitor
}

// ErrDataIntegrity signals a quarantine-worthy failure on the persisted
// store or token file (§4.18: schema mismatch, decryption failure) — callers
// map this to exit code 3 rather than a generic startup failure.
var ErrDataIntegrity = errors.New("data integrity failure")

// ErrAuthFailure signals the brokerage rejected authentication at startup —
// callers map this to exit code 2.
var ErrAuthFailure = errors.New("brokerage authentication failure")

// New builds every component and wires them together but does not start
// background work — call Start for that.
func New(cfg *config.Config) (*App, error) {
	log := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.DevMode,
		LogDir:  cfg.LogDir,
		Channel: logging.ChannelDaemon,
	})
	log.Info().Msg("starting riskd")

	store, err := persistence.Open(cfg.DataDir+"/riskd.db", log)
	if err != nil {
		return nil, fmt.Errorf("opening persistence store: %w: %w", ErrDataIntegrity, err)
	}

	tokenStore, err := brokerapi.NewTokenStore(cfg.DataDir+"/tokens.enc", cfg.EncryptionKeySalt, cfg.TokenMemoryOnly)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening token store: %w: %w", ErrDataIntegrity, err)
	}

	broker := brokerapi.NewClient(cfg.BrokerageBaseURL, cfg.BrokerageUserName, cfg.BrokerageAPIKey, log)
	tokenMgr := brokerapi.NewTokenManager(broker, tokenStore, log)
	broker.SetTokenManager(tokenMgr)

	rulesCfg, err := config.LoadRulesConfig(cfg.RulesConfigPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading rules config: %w", err)
	}
	if cfg.SingleAccount != 0 {
		rulesCfg.Accounts = []int64{cfg.SingleAccount}
	}

	st := state.New()
	qt := quotes.New()
	cc := contracts.New(broker)
	pnl := pnltracker.New(store, st, cc, qt, log)
	counter := tradecounter.New()
	lo := lockout.New(store, log)
	tm := timers.New(log)

	var mutatingClient domain.BrokerClient = broker
	if cfg.DryRun {
		mutatingClient = brokerapi.NewDryRunClient(broker, log)
		log.Warn().Msg("dry-run mode: enforcement actions will be logged, not executed")
	}
	actions := enforcement.New(mutatingClient, st, st, store, log)

	deps := &rules.Deps{
		State:       st,
		Quotes:      qt,
		Contracts:   cc,
		PnL:         pnl,
		Trades:      counter,
		Lockouts:    lo,
		Timers:      tm,
		Enforcement: actions,
		Log:         log,
	}

	bus := events.NewBus(log)
	rt := router.New(rulesCfg, deps, broker, bus, log)

	streamMgr := stream.NewManager(cfg.UserHubURL, cfg.MarketHubURL, tokenMgr, bus, log)
	streamMgr.SetReconcileHook(rt.ReconcileState)

	health := selfhealth.New(log)

	var backupSvc *backup.Service
	if cfg.BackupEnabled {
		r2, err := backup.NewR2Client(context.Background(), backup.R2Config{
			AccountID:       cfg.BackupR2AccountID,
			AccessKeyID:     cfg.BackupR2AccessKeyID,
			SecretAccessKey: cfg.BackupR2SecretAccessKey,
			Bucket:          cfg.BackupBucket,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("building r2 backup client: %w", err)
		}
		backupSvc = backup.New(store.DB(), r2, cfg.DataDir, log)
	} else {
		backupSvc = backup.New(store.DB(), nil, cfg.DataDir, log)
	}

	maintSched := maintenance.New(log)

	var statusSrv *statusapi.Server
	if cfg.StatusAPIAddr != "" {
		port, err := statusAPIPort(cfg.StatusAPIAddr)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("parsing status api address: %w", err)
		}
		statusSrv = statusapi.New(statusapi.Config{
			Port:        port,
			Log:         log,
			Stream:      streamMgr,
			State:       st,
			PnL:         pnl,
			Lockouts:    lo,
			Store:       store,
			Accounts:    rulesCfg.Accounts,
			DevMode:     cfg.DevMode,
			Health:      health,
			Diagnostics: broker,
		})
	}

	return &App{
		cfg:        cfg,
		rulesCfg:   rulesCfg,
		log:        log,
		store:      store,
		tokenStore: tokenStore,
		tokenMgr:   tokenMgr,
		broker:     broker,
		bus:        bus,
		streamMgr:  streamMgr,
		rt:         rt,
		pnl:        pnl,
		lockouts:   lo,
		maintSched: maintSched,
		backupSvc:  backupSvc,
		statusSrv:  statusSrv,
		health:     health,
	}, nil
}

// Start runs the daemon's full startup sequence: authenticate, hydrate
// persisted state, connect push streams, subscribe every configured
// account, register maintenance jobs, and serve the status API. It returns
// once every background component has been launched; it does not block.
func (a *App) Start(ctx context.Context) error {
	if _, _, err := a.broker.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticating with brokerage: %w: %w", ErrAuthFailure, err)
	}

	entries, err := a.store.LoadDailyPnL()
	if err != nil {
		return fmt.Errorf("loading daily pnl: %w", err)
	}
	today := time.Now().In(a.timezone()).Format("2006-01-02")
	a.pnl.LoadFromStore(entries, today)

	if err := a.lockouts.LoadFromStore(time.Now()); err != nil {
		return fmt.Errorf("loading lockouts: %w", err)
	}

	if a.cfg.ResetNow {
		a.log.Warn().Msg("--reset-now: forcing daily P&L and lockout reset")
		for _, accountID := range a.accounts() {
			a.pnl.ResetDaily(accountID, today)
			a.lockouts.RemoveLockout(accountID)
		}
	}

	a.rt.Start()

	if a.rulesCfg.AuthLossGuard.Enabled && a.rulesCfg.AuthLossGuard.CheckOnStartup {
		for _, accountID := range a.accounts() {
			canTrade, err := a.broker.AccountStatus(ctx, accountID)
			if err != nil {
				a.log.Warn().Err(err).Int64("account_id", accountID).Msg("RULE-010 startup check: fetching account status failed, assuming tradable")
				continue
			}
			a.rt.CheckStartupAuth(ctx, accountID, canTrade)
		}
	}

	if err := a.streamMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting push streams: %w", err)
	}

	if err := a.rt.ReconcileState(ctx); err != nil {
		a.log.Warn().Err(err).Msg("initial reconciliation failed, proceeding with empty state")
	}

	for _, accountID := range a.accounts() {
		if err := a.streamMgr.SubscribeTrades(accountID); err != nil {
			return fmt.Errorf("subscribing trades for account %d: %w", accountID, err)
		}
		if err := a.streamMgr.SubscribePositions(accountID); err != nil {
			return fmt.Errorf("subscribing positions for account %d: %w", accountID, err)
		}
		if err := a.streamMgr.SubscribeOrders(accountID); err != nil {
			return fmt.Errorf("subscribing orders for account %d: %w", accountID, err)
		}
		if err := a.streamMgr.SubscribeAccount(accountID); err != nil {
			return fmt.Errorf("subscribing account updates for account %d: %w", accountID, err)
		}
	}

	if err := a.maintSched.AddJob("0 30 3 * * *", maintenance.NewDailyJob(a.store, a.backupSvc, a.cfg.DataDir, a.cfg.BackupRetentionDays, a.log)); err != nil {
		return fmt.Errorf("scheduling daily maintenance job: %w", err)
	}
	if err := a.maintSched.AddJob("0 0 4 * * 0", maintenance.NewWeeklyJob(a.store, a.log)); err != nil {
		return fmt.Errorf("scheduling weekly maintenance job: %w", err)
	}
	a.maintSched.Start()

	if a.statusSrv != nil {
		go func() {
			if err := a.statusSrv.Start(); err != nil {
				a.log.Error().Err(err).Msg("status api stopped unexpectedly")
			}
		}()
	}

	a.log.Info().Msg("riskd started")
	return nil
}

// Shutdown stops every background component in reverse dependency order and
// releases the brokerage token and database handle.
func (a *App) Shutdown(ctx context.Context) {
	a.log.Info().Msg("shutting down riskd")

	if a.statusSrv != nil {
		if err := a.statusSrv.Shutdown(ctx); err != nil {
			a.log.Error().Err(err).Msg("status api shutdown error")
		}
	}

	a.maintSched.Stop()

	if err := a.streamMgr.Stop(); err != nil {
		a.log.Error().Err(err).Msg("stream manager shutdown error")
	}

	a.tokenMgr.Invalidate()

	if err := a.store.WALCheckpoint("TRUNCATE"); err != nil {
		a.log.Error().Err(err).Msg("final wal checkpoint failed")
	}
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("closing persistence store")
	}

	a.log.Info().Msg("riskd stopped")
}

func (a *App) accounts() []int64 {
	return a.rt.Accounts()
}

func (a *App) timezone() *time.Location {
	loc, err := time.LoadLocation(a.cfg.BrokerageTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// statusAPIPort extracts the numeric port from a "host:port" status API
// address for statusapi.Config.Port.
func statusAPIPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid status api address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid status api port %q: %w", portStr, err)
	}
	return port, nil
}
