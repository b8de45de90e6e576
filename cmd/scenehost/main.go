package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/scenebind/host/internal/config"
	"github.com/scenebind/host/internal/core/event"
	coresys "github.com/scenebind/host/internal/core/system"
	"github.com/scenebind/host/internal/handler"
	"github.com/scenebind/host/internal/lifecycle"
	gonet "github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/net/packet"
	"github.com/scenebind/host/internal/persist"
	"github.com/scenebind/host/internal/resource"
	"github.com/scenebind/host/internal/scene"
	"github.com/scenebind/host/internal/scripting"
	"github.com/scenebind/host/internal/subsystem"
	"github.com/scenebind/host/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, platform string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            scenehost  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      場景 · 腳本生命週期橋接主機          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m主機:\033[0m %s \033[90m(平台: %s)\033[0m\n\n", name, platform)
}

// displayWidth counts CJK characters as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main host logic ───────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/scenehost.toml"
	if p := os.Getenv("SCENEHOST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Resource service
	res, err := resource.New(cfg.Resource, log.Named("resource"))
	if err != nil {
		return fmt.Errorf("resource service: %w", err)
	}

	// 4. Native object context, registry and cascade
	sctx := scene.NewContext(log.Named("scene"))
	registry := lifecycle.NewRegistry()
	cascade := lifecycle.NewCascade(registry, log.Named("lifecycle"))

	// 5. Subsystems
	subs := subsystem.NewSet()
	defer subs.Close()
	engineSub := subsystem.NewEngine(sctx)
	subs.Add(engineSub)
	subs.Add(subsystem.NewVM(sctx, scripting.APIVersion, cfg.Runtime.ScriptsDir))
	subs.Add(subsystem.NewGraphics(sctx, cfg.Graphics))
	subs.Add(subsystem.NewRenderer(sctx))
	subs.Add(subsystem.NewInput(sctx))
	subs.Add(subsystem.NewFileSystem(sctx, res))
	subs.Add(subsystem.NewResourceCache(sctx, res))

	var (
		netServer *gonet.Server
		sessions  = gonet.NewSessionStore()
	)
	if cfg.Network.Enabled {
		netServer, err = gonet.NewServer(cfg.Network.BindAddress, cfg.Network.InQueueSize, cfg.Network.OutQueueSize, cfg.Network.WriteTimeout, log.Named("console"))
		if err != nil {
			return fmt.Errorf("console listen: %w", err)
		}
		netSub := subsystem.NewNetwork(sctx, netServer, sessions)
		subs.Add(netSub)
		netSub.SubscribeToEvent(event.ScriptPrint, func(_ event.Type, data event.Data) {
			text, _ := data[event.PText].(string)
			handler.BroadcastPrint(sessions, text)
		})
	}

	// 6. Script engine
	eng, err := scripting.NewEngine(sctx, cascade, scripting.Options{
		Runtime:    cfg.Runtime,
		Resources:  res,
		Subsystems: subs,
	}, log.Named("lua"))
	if err != nil {
		return fmt.Errorf("script engine: %w", err)
	}
	defer eng.Close()

	printBanner(cfg.Runtime.Name, eng.Platform())

	// 7. Optional destruction journal
	runner := coresys.NewRunner(cfg.Runtime.TickRate, log.Named("runner"))
	var (
		journal     *system.JournalSystem
		journalRepo *persist.JournalRepo
	)
	if cfg.Database.Enabled {
		printSection("資料庫")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		version, err := persist.RunMigrations(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("資料庫遷移完成 (版本 %d)", version))
		fmt.Println()

		journalRepo = persist.NewJournalRepo(db)
		journal = system.NewJournalSystem(journalRepo, log.Named("journal"), cfg.Database.FlushInterval, cfg.Database.Retention)
		cascade.SetRecorder(journal)
		defer journal.Flush()
	}

	// 8. Startup scene and main script
	printSection("載入場景")
	if cfg.Runtime.Scene != "" {
		s, err := eng.LoadSceneFile(cfg.Runtime.Scene)
		if err != nil {
			return fmt.Errorf("startup scene: %w", err)
		}
		printStat("場景節點 "+s.Name(), len(s.Root().Children(true)))
	}
	if cfg.Runtime.MainScript != "" {
		mainPath := path.Join(cfg.Runtime.ScriptsDir, cfg.Runtime.MainScript)
		if err := eng.ExecuteFile(mainPath); err != nil {
			if !errors.Is(err, resource.ErrNotFound) {
				return fmt.Errorf("main script: %w", err)
			}
			log.Warn("找不到主腳本", zap.String("path", mainPath))
		} else {
			printOK("主腳本已執行 " + mainPath)
		}
	}
	printStat("場景", len(eng.Scenes()))
	printStat("腳本代理", registry.Len())
	fmt.Println()

	// 9. Systems
	if netServer != nil {
		deps := &handler.Deps{
			Config:     cfg,
			Log:        log.Named("console"),
			Scripting:  eng,
			Context:    sctx,
			Registry:   registry,
			Subsystems: subs,
			Sessions:   sessions,
		}
		if journalRepo != nil {
			deps.Journal = journalRepo
		}
		pktReg := packet.NewRegistry(log.Named("console"))
		handler.RegisterAll(pktReg, deps)
		runner.Register(system.NewInputSystem(netServer, pktReg, sessions, deps, cfg.Network.MaxPerTick, log.Named("console")))
		go netServer.AcceptLoop()
	}
	runner.Register(system.NewEventDispatchSystem(sctx.Bus))
	runner.Register(system.NewScriptUpdateSystem(sctx.Bus, engineSub))
	runner.Register(system.NewPostUpdateSystem(sctx.Bus, engineSub))
	if netServer != nil {
		runner.Register(system.NewOutputSystem(sessions))
	}
	if journal != nil {
		runner.Register(journal)
	}
	runner.Register(system.NewCleanupSystem(sctx.World, log.Named("cleanup")))

	// 10. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Runtime.TickRate)
	defer ticker.Stop()

	// Console input is polled between full ticks so commands do not wait a
	// whole tick. A nil channel never fires.
	var pollC <-chan time.Time
	if netServer != nil && cfg.Network.PollInterval > 0 && cfg.Network.PollInterval < cfg.Runtime.TickRate {
		poll := time.NewTicker(cfg.Network.PollInterval)
		defer poll.Stop()
		pollC = poll.C
	}

	printSection("主機就緒")
	if netServer != nil {
		printReady(fmt.Sprintf("主控台位址 %s", netServer.Addr().String()))
	}
	printReady(fmt.Sprintf("主迴圈啟動 (tick: %s)", cfg.Runtime.TickRate))
	fmt.Println()

	stop := func() {
		if netServer != nil {
			netServer.Shutdown()
			sessions.CloseAll()
		}
	}

	for {
		select {
		case <-pollC:
			runner.TickPhase(coresys.PhaseInput, 0)
		case <-ticker.C:
			runner.Tick(cfg.Runtime.TickRate)
			if engineSub.ExitRequested() {
				log.Info("腳本要求結束")
				stop()
				return nil
			}
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			stop()
			total, slow := runner.Ticks()
			log.Info("主機已停止", zap.Uint64("ticks", total), zap.Uint64("slow_ticks", slow))
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
