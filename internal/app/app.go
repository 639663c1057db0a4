package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/teealloy/accountd/internal/account"
	"github.com/teealloy/accountd/internal/config"
	"github.com/teealloy/accountd/internal/credential"
	"github.com/teealloy/accountd/internal/db"
	"github.com/teealloy/accountd/internal/deletion"
	"github.com/teealloy/accountd/internal/http/api"
	"github.com/teealloy/accountd/internal/identity"
	"github.com/teealloy/accountd/internal/jobs"
	"github.com/teealloy/accountd/internal/reputation"
	"github.com/teealloy/accountd/internal/security"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the account service: database, core services, background
// sweep, and the HTTP adapter, then blocks until the context is canceled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	masterKey, err := config.LoadMasterKey(configPath)
	if err != nil {
		return err
	}
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServer(configPath)
	if err != nil {
		return err
	}
	if serverCfg.Port <= 0 {
		serverCfg.Port = defaultPort
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	cipher, err := security.NewCipher(masterKey)
	if err != nil {
		return err
	}

	deletions := deletion.NewStore(conn)
	ledger := reputation.NewLedger(conn, deletions)
	accounts := account.NewService(conn)
	credentials := credential.NewService(conn, cipher, ledger, serverCfg.TOTPIssuer)

	var roster identity.ContributorRoster = identity.StaticRoster{}
	if serverCfg.RosterURL != "" {
		roster = identity.NewHTTPRoster(serverCfg.RosterURL)
	}
	identities := identity.NewService(conn, ledger, roster)

	scheduler := jobs.NewScheduler(deletions)
	scheduler.Start(ctx, serverCfg.SweepSchedule)
	defer scheduler.Stop()

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.RegisterRoutes(engine, api.Deps{
		DB:          conn,
		Accounts:    accounts,
		Credentials: credentials,
		Identities:  identities,
		Ledger:      ledger,
		JWT:         jwtCfg,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", serverCfg.Port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", serverCfg.Port).Info("account service listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		return errServe
	}
}

// requestLogger logs each request with logrus structured fields.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("request handled")
	}
}
