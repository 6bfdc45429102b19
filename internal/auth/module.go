package auth

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/credential"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/lockout"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/token"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/totp"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/worker"
)

// NewModule wires the auth core: key management, lockout, credential and
// TOTP verification, token issuance and storage, and the HTTP surface.
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(db *gorm.DB) account.Repository {
					return account.NewRepository(db)
				},
			),
			fx.Annotate(
				func(db *gorm.DB, log *zap.Logger) audit.Sink {
					return audit.NewSink(db, log)
				},
			),
			fx.Annotate(
				func(db *gorm.DB) keys.Repository {
					return keys.NewRepository(db)
				},
			),
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, repo keys.Repository) *keys.Manager {
					return keys.NewManager(&cfg.Keys, log, repo)
				},
			),
			fx.Annotate(
				func(db *gorm.DB) lockout.Repository {
					return lockout.NewRepository(db)
				},
			),
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, repo lockout.Repository, events audit.Sink) *lockout.Manager {
					return lockout.NewManager(&cfg.Lockout, log, repo, events)
				},
			),
			fx.Annotate(
				func() *credential.Verifier {
					return credential.NewVerifier()
				},
			),
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, accounts account.Repository) *totp.Verifier {
					return totp.NewVerifier(&cfg.TOTP, log, accounts)
				},
			),
			fx.Annotate(
				func(db *gorm.DB) token.Store {
					return token.NewStore(db)
				},
			),
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, keyManager *keys.Manager) *token.Issuer {
					return token.NewIssuer(&cfg.Auth, log, keyManager)
				},
			),
			fx.Annotate(
				func(store token.Store, events audit.Sink, log *zap.Logger) *token.ReplayDetector {
					return token.NewReplayDetector(store, events, log)
				},
			),
			fx.Annotate(
				func(cfg *config.AppConfig) *worker.Pool {
					return worker.NewPool(cfg.Auth.VerifyPoolSize)
				},
			),
			fx.Annotate(
				func(
					log *zap.Logger,
					accounts account.Repository,
					verifier *credential.Verifier,
					totpVerifier *totp.Verifier,
					lockoutManager *lockout.Manager,
					issuer *token.Issuer,
					store token.Store,
					detector *token.ReplayDetector,
					events audit.Sink,
					pool *worker.Pool,
				) *Service {
					return NewService(ServiceParams{
						Log:      log,
						Accounts: accounts,
						Verifier: verifier,
						TOTP:     totpVerifier,
						Lockout:  lockoutManager,
						Issuer:   issuer,
						Store:    store,
						Detector: detector,
						Events:   events,
						Pool:     pool,
					})
				},
			),
			fx.Annotate(
				func(svc *Service, keyManager *keys.Manager, cfg *config.AppConfig, log *zap.Logger) *Handler {
					return NewHandler(svc, keyManager, &cfg.Cookie, log)
				},
			),
			fx.Annotate(
				func(keyManager *keys.Manager, events audit.Sink, log *zap.Logger) *Middleware {
					return NewMiddleware(keyManager, events, log)
				},
			),
		),
		fx.Invoke(registerKeyLifecycle),
		fx.Invoke(registerLockoutJanitor),
	)
}

// registerLockoutJanitor runs the sweep that reclaims stale ip/email
// observations until shutdown.
func registerLockoutJanitor(
	lifecycle fx.Lifecycle,
	manager *lockout.Manager,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				manager.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

// registerKeyLifecycle initializes the signing key at startup and runs the
// overlap sweeper (and scheduled rotation, when configured) until shutdown.
func registerKeyLifecycle(
	lifecycle fx.Lifecycle,
	manager *keys.Manager,
	log *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			key, err := manager.CurrentSigningKey(ctx)
			if err != nil {
				return err
			}
			log.Info("signing key ready", zap.String("kid", key.KID))

			go func() {
				defer close(done)
				manager.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
