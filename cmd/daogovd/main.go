// Command daogovd runs the DAO governance toolkit daemon: the Fungible and
// Non-Fungible Governance Engines, the Membership Token Gateway, the
// read-only query API, and the owner-gated mutate API, all backed by a
// single LevelDB instance.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"daogov/api/adminapi"
	"daogov/api/httpapi"
	"daogov/config"
	"daogov/core/clock"
	"daogov/core/events"
	"daogov/crypto"
	"daogov/native/cw20"
	"daogov/native/fge"
	"daogov/native/membership"
	"daogov/native/nge"
	"daogov/observability/logging"
	"daogov/observability/metrics"
	telemetry "daogov/observability/otel"
	"daogov/storage"
	"daogov/storage/archive"
	"daogov/storage/auditsink"
)

const (
	fgeContractAddr = "daogov1fgecontract00000000000000000000000"
	ngeContractAddr = "daogov1ngecontract00000000000000000000000"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./daogovd.toml", "path to daogovd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	logWriter := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	logger := logging.SetupWriter("daogovd", strings.TrimSpace(os.Getenv("DAOGOV_ENV")), logWriter)
	logger.Info("configuration loaded",
		"data_dir", cfg.DataDir,
		"query_addr", cfg.QueryAddr,
		"admin_addr", cfg.AdminAddr,
		logging.MaskField("owner_key", cfg.OwnerKey),
		logging.MaskField("jwt_secret", cfg.JWTSecret),
	)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "daogovd",
		Environment: os.Getenv("DAOGOV_ENV"),
		Endpoint:    otlpEndpoint,
		Insecure:    true,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Traces:      otlpEndpoint != "",
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open leveldb", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	auditDSN := cfg.AuditDSN
	if !strings.HasPrefix(auditDSN, "postgres://") && !strings.HasPrefix(auditDSN, "postgresql://") && !filepath.IsAbs(auditDSN) {
		auditDSN = filepath.Join(cfg.DataDir, filepath.Base(auditDSN))
	}
	auditDB, err := auditsink.Open(auditDSN)
	if err != nil {
		logger.Error("open audit sink", "error", err)
		os.Exit(1)
	}
	auditSink := auditsink.NewSink(auditDB, logger)

	ownerKeyBytes, err := hex.DecodeString(cfg.OwnerKey)
	if err != nil {
		logger.Error("decode owner key", "error", err)
		os.Exit(1)
	}
	ownerKey, err := crypto.PrivateKeyFromBytes(ownerKeyBytes)
	if err != nil {
		logger.Error("parse owner key", "error", err)
		os.Exit(1)
	}
	ownerAddr := ownerKey.PubKey().Address().String()

	// The engines compare voting/timelock periods against this source; a
	// standalone daemon has no host chain to read a block height from, so
	// wall-clock seconds stand in for "block height" and config periods are
	// denominated in seconds.
	clockSource := clock.Func(func() uint64 { return uint64(time.Now().Unix()) })
	emitter := events.NewBroadcaster(metrics.NewEmitter(), auditSink)

	ledger := cw20.NewLedger(db)
	fgeEngine := fge.New(db, ledger, clockSource, emitter)
	ngeEngine := nge.New(db, clockSource, emitter)

	if _, err := fgeEngine.State(); err != nil {
		proposalDeposit := new(uint256.Int)
		if perr := proposalDeposit.SetFromDecimal(cfg.FGE.ProposalDeposit); perr != nil {
			logger.Error("parse proposal deposit", "error", perr)
			os.Exit(1)
		}
		if err := fgeEngine.Instantiate(ownerAddr, fgeContractAddr, fge.Config{
			Owner:           ownerAddr,
			Token:           cfg.FGE.Token,
			Quorum:          cfg.FGE.Quorum,
			Threshold:       cfg.FGE.Threshold,
			VotingPeriod:    cfg.FGE.VotingPeriod,
			TimelockPeriod:  cfg.FGE.TimelockPeriod,
			ProposalDeposit: proposalDeposit,
			SnapshotPeriod:  cfg.FGE.SnapshotPeriod,
		}); err != nil {
			logger.Error("instantiate fge", "error", err)
			os.Exit(1)
		}
		logger.Info("fge instantiated", "owner", ownerAddr, "token", cfg.FGE.Token)
	}

	if _, err := ngeEngine.State(); err != nil {
		if err := ngeEngine.Instantiate(ownerAddr, ngeContractAddr, nge.Config{
			Owner:        ownerAddr,
			Token:        cfg.NGE.Token,
			Quorum:       cfg.NGE.Quorum,
			Threshold:    cfg.NGE.Threshold,
			VotingPeriod: cfg.NGE.VotingPeriod,
		}); err != nil {
			logger.Error("instantiate nge", "error", err)
			os.Exit(1)
		}
		logger.Info("nge instantiated", "owner", ownerAddr, "token", cfg.NGE.Token)
	}

	membershipGW := membership.New(db, ngeEngine)
	if _, err := membershipGW.Config(); err != nil {
		if err := membershipGW.Instantiate(ownerAddr, ngeContractAddr); err != nil {
			logger.Error("instantiate membership gateway", "error", err)
			os.Exit(1)
		}
	}

	queryServer := httpapi.New(fgeEngine, ngeEngine, membershipGW, auditDB)
	adminGuard := adminapi.NewJWTGuard([]byte(cfg.JWTSecret), "daogovd")
	adminLimiter := adminapi.NewRateLimiter(2, 20)
	adminServer := adminapi.New(fgeEngine, ngeEngine, membershipGW, adminGuard, adminLimiter)

	queryHTTP := &http.Server{Addr: cfg.QueryAddr, Handler: otelhttp.NewHandler(queryServer.Handler(), "daogovd-query")}
	adminHTTP := &http.Server{Addr: cfg.AdminAddr, Handler: otelhttp.NewHandler(adminServer.Handler(), "daogovd-admin")}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serve(logger, "query", queryHTTP)
	go serve(logger, "admin", adminHTTP)

	if cfg.ArchiveInterval > 0 {
		go runArchiver(ctx, logger, cfg.ArchiveDir, time.Duration(cfg.ArchiveInterval)*time.Second, fgeEngine, ngeEngine)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = queryHTTP.Shutdown(shutdownCtx)
	_ = adminHTTP.Shutdown(shutdownCtx)
}

// runArchiver periodically exports terminal polls and votes from both
// engines to parquet files under dir until ctx is cancelled.
func runArchiver(ctx context.Context, logger *slog.Logger, dir string, interval time.Duration, fgeEngine *fge.Engine, ngeEngine *nge.Engine) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if polls, votes, err := archive.Export(dir, "fge", fgeEngine.PollStore(), now); err != nil {
				logger.Error("archive export", "engine", "fge", "error", err)
			} else {
				logger.Info("archive export", "engine", "fge", "polls", polls, "votes", votes)
			}
			if polls, votes, err := archive.Export(dir, "nge", ngeEngine.PollStore(), now); err != nil {
				logger.Error("archive export", "engine", "nge", "error", err)
			} else {
				logger.Info("archive export", "engine", "nge", "polls", polls, "votes", votes)
			}
		}
	}
}

func serve(logger *slog.Logger, name string, server *http.Server) {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("listen", "server", name, "error", err)
		os.Exit(1)
	}
	logger.Info("listening", "server", name, "addr", listener.Addr().String())
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		logger.Error("serve", "server", name, "error", err)
	}
}
