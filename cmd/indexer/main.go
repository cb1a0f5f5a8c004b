package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexview/params"
	"github.com/uhyunpark/dexview/pkg/api"
	"github.com/uhyunpark/dexview/pkg/app/dex"
	"github.com/uhyunpark/dexview/pkg/app/views"
	"github.com/uhyunpark/dexview/pkg/ledger"
	"github.com/uhyunpark/dexview/pkg/storage"
	"github.com/uhyunpark/dexview/pkg/util"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	// Priority: ENV > .env file > YAML > defaults
	cfg := params.LoadFromEnv("")
	if *configPath != "" {
		var err error
		if cfg, err = params.LoadFile(*configPath, ""); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	level, err := util.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", level.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Ledger ----
	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	src, err := ledger.DialEthSource(dialCtx, cfg.Ledger.RPCURL, common.HexToAddress(cfg.Ledger.Contract), sugar.Named("ledger"))
	if err != nil {
		cancelDial()
		sugar.Fatalw("ledger_dial_failed", "rpc", cfg.Ledger.RPCURL, "err", err)
	}
	defer src.Close()
	scope, err := src.Scope(dialCtx)
	cancelDial()
	if err != nil {
		sugar.Fatalw("ledger_scope_failed", "err", err)
	}

	// ---- Journal ----
	var journal dex.Journal
	if cfg.Storage.JournalEnabled {
		ps, err := storage.NewPebbleStore(filepath.Join(cfg.Storage.DataDir, "journal"))
		if err != nil {
			sugar.Fatalw("journal_open_failed", "dir", cfg.Storage.DataDir, "err", err)
		}
		defer ps.Close()
		journal = ps
	}

	// ---- Views ----
	display, candles, _ := cfg.Views.Locations()
	builder := views.NewBuilder(views.Options{
		DisplayLocation: display,
		BucketLocation:  candles,
		Logger:          sugar.Named("views"),
	})

	var server *api.Server
	app := dex.New(dex.Options{
		Config: dex.Config{
			FromBlock: cfg.Ledger.FromBlock,
			Debounce:  cfg.Views.Debounce(),
		},
		Views:   builder,
		Journal: journal,
		Logger:  sugar.Named("dex"),
		OnUpdate: func(up dex.Update) {
			if server != nil {
				server.BroadcastUpdate(up)
			}
		},
	})
	server = api.NewServer(app, cfg.Server.CORSOrigins, sugar.Named("api"))

	app.Start(ctx)
	if err := app.Connect(ctx, src, scope); err != nil {
		sugar.Fatalw("ledger_connect_failed", "scope", scope, "err", err)
	}

	go func() {
		if err := app.WaitLoaded(ctx); err != nil {
			sugar.Errorw("views_not_loaded", "err", err)
			return
		}
		st := app.Status()
		sugar.Infow("views_loaded",
			"scope", scope,
			"placed", st.Kinds["placed"].Count,
			"cancelled", st.Kinds["cancelled"].Count,
			"filled", st.Kinds["filled"].Count,
		)
	}()

	if err := server.Start(ctx, cfg.Server.Addr); err != nil {
		sugar.Errorw("api_stopped", "err", err)
	}
	if err := app.Close(); err != nil {
		sugar.Warnw("app_close_failed", "err", err)
	}
	sugar.Infow("shutdown_complete")
}
