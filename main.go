package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leeineian/vibestream/home"
	"github.com/leeineian/vibestream/proc"
	"github.com/leeineian/vibestream/sys"
)

const (
	pidFile = ".bot.pid"

	MsgBotStarting      = "Starting %s..."
	MsgBotKillingOld    = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated = "Old instance terminated."
	MsgBotRegisterFail  = "Command registration failed: %v"
	MsgBotShutdown      = "Shutting down %s..."
	MsgBotSkipReg       = "Skipping command registration as requested."
	MsgGenericError     = "%v"

	shutdownTimeout = 15 * time.Second
)

func main() {
	// LogFatal panics so that defers still run.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	forceReg := flag.Bool("force-reg", false, "Register commands even when unchanged")
	flag.Parse()

	// Config first so .env can set DEBUG and SILENT for the logger.
	cfg, err := sys.LoadConfig()
	sys.InitLogger(*silent || (cfg != nil && cfg.Silent), true)
	defer sys.CloseLogger()
	if err != nil {
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}

	sys.LogInfo(MsgBotStarting, sys.GetProjectName())

	f := lockPIDFile()
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(pidFile)
	}()

	if err := run(cfg, *silent, *skipReg, *forceReg); err != nil {
		sys.LogFatal(MsgGenericError, err)
	}
}

// lockPIDFile takes an exclusive lock on the PID file, terminating whichever
// instance holds it.
func lockPIDFile() *os.File {
	f, err := os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal("Failed to open PID file: %v", err)
	}

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			sys.LogFatal("Failed to lock PID file: %v", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil || oldPid == os.Getpid() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		process, procErr := os.FindProcess(oldPid)
		if procErr != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		sys.LogInfo(MsgBotKillingOld, oldPid)
		_ = process.Signal(syscall.SIGTERM)

		terminated := false
		for range 50 {
			if err := process.Signal(syscall.Signal(0)); err != nil {
				terminated = true
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if !terminated {
			sys.LogWarn("Old process %d is stubborn. Sending SIGKILL...", oldPid)
			_ = process.Signal(syscall.SIGKILL)
			time.Sleep(200 * time.Millisecond)
		}
		sys.LogInfo(MsgBotOldTerminated)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()
	return f
}

func run(cfg *sys.Config, silent, skipReg, forceReg bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := sys.InitDatabase(ctx, cfg.DatabasePath); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sys.CloseDatabase()

	launcherCfg := proc.LauncherConfig{
		YtdlpPath:  cfg.YtdlpPath,
		FFmpegPath: cfg.FFmpegPath,
		Proxy:      cfg.YoutubeProxy,
	}
	for _, st := range proc.CheckTools(ctx, launcherCfg) {
		if !st.OK() {
			return fmt.Errorf("%s is required: %w", st.Name, st.Err)
		}
	}

	client, err := sys.CreateClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	resolver := proc.NewResolver(proc.ResolverConfig{
		YtdlpPath:       cfg.YtdlpPath,
		Proxy:           cfg.YoutubeProxy,
		Timeout:         cfg.ResolveTimeout,
		PlaylistTimeout: cfg.PlaylistTimeout,
		PlaylistLimit:   cfg.PlaylistLimit,
		Rate:            cfg.ResolveRate,
		Burst:           cfg.ResolveBurst,
	}, proc.NewYouTubeSearcher())

	history := sys.NewHistoryStore(sys.DB)
	notifier := home.NewChannelNotifier(client)
	player := proc.NewPlayer(proc.PlayerConfig{
		Registry:    proc.NewRegistry(),
		Launcher:    proc.NewPipeLauncher(launcherCfg),
		Hydrator:    resolver,
		SettleDelay: cfg.SettleDelay,
		Notifier:    notifier,
		History:     history,
	})

	home.Setup(home.MusicDeps{
		Player:   player,
		Resolver: resolver,
		History:  history,
		Notifier: notifier,
		Bitrate:  cfg.OpusBitrate,
	})

	if !skipReg {
		if err := sys.RegisterCommands(ctx, client, cfg.GuildID, forceReg); err != nil {
			sys.LogError(MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo(MsgBotSkipReg)
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(MsgBotShutdown, sys.GetProjectName())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := player.Shutdown(shutdownCtx); err != nil {
		sys.LogWarn("Player shutdown: %v", err)
	}
	return nil
}
