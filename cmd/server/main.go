package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/swappnet/swapp/api/router"
	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/internal/service"
	"github.com/swappnet/swapp/pkg/logger"
	"github.com/swappnet/swapp/pkg/ssh"
	"github.com/swappnet/swapp/simulate"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	simPath := flag.String("simulate", "simulate/simulate.yaml", "simulator config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(logConfig(cfg)); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{"version": "1.0.0", "device": cfg.Device.Key}).Info("Starting swapp server")

	// 启动模拟交换机（可选），并将 device 指向它
	var sim *simulate.Server
	if cfg.Server.SimulateEnable {
		sim, err = startSimulator(cfg, *simPath)
		if err != nil {
			logger.Fatalf("Failed to start simulator: %v", err)
		}
		defer sim.Close()
	}

	store, closeStore, err := service.OpenStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithField("error", err).Warn("Store close failed")
		}
	}()

	engine, err := service.NewEngine(cfg, ssh.NewClient(&ssh.Config{Timeout: cfg.Session.ConnectTimeout}), store)
	if err != nil {
		logger.Fatalf("Failed to build engine: %v", err)
	}

	r := router.SetupRouter(cfg, engine)
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"addr": server.Addr, "mode": cfg.Server.Mode}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	go watchConfig(gctx, *configPath)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithField("error", err).Error("Server stopped with error")
		return
	}
	logger.Info("Server shutdown complete")
}

func logConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

// startSimulator simulate.yaml 缺失时使用默认拓扑；登录凭据与 device 配置保持一致
func startSimulator(cfg *config.Config, path string) (*simulate.Server, error) {
	simCfg := simulate.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := simulate.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		simCfg = *loaded
	} else {
		logger.WithField("path", path).Warn("Simulate: config missing, using defaults")
	}
	if cfg.Server.SimulateListen != "" {
		simCfg.Listen = cfg.Server.SimulateListen
	}
	if cfg.Device.Username != "" {
		simCfg.Username = cfg.Device.Username
		simCfg.Password = cfg.Device.Password
	}
	simCfg.EnablePassword = cfg.Device.EnablePassword

	srv, err := simulate.NewServer(simCfg)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(); err != nil {
		return nil, err
	}
	host, portStr, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)
	cfg.Device.Host, cfg.Device.Port = host, port
	cfg.Device.Username, cfg.Device.Password = simCfg.Username, simCfg.Password
	logger.WithFields(logrus.Fields{"addr": srv.Addr(), "hostname": simCfg.Hostname}).Info("Simulate: started")
	return srv, nil
}

// watchConfig 配置文件变化时热更新日志级别；其余参数需重启生效
func watchConfig(ctx context.Context, path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithField("error", err).Warn("Config watch init failed")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.WithField("error", err).Warn("Config watch add failed")
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.WithField("error", err).Warn("Config reload failed")
			return
		}
		logger.SetLevel(newCfg.Log.Level)
		logger.WithField("level", newCfg.Log.Level).Info("Config reloaded")
	}
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithField("error", err).Warn("Config watch error")
		}
	}
}
