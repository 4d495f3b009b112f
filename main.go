package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cachetier/cachetier/internal/config"
	"github.com/cachetier/cachetier/internal/logging"
	"github.com/cachetier/cachetier/internal/server"
	"github.com/cachetier/cachetier/internal/server/routes"
	"github.com/cachetier/cachetier/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["caches"] = len(cfg.Caches)
		fields["tiers"] = config.TierSummary(cfg.Caches)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → CacheRegistry → 清理调度器 → Fiber server”顺序，
	// 保证所有请求共享同一组缓存实例。
	registry, err := server.NewCacheRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建缓存注册表失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["caches"] = len(cfg.Caches)
	fields["tiers"] = config.TierSummary(cfg.Caches)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	stopSweeps := startSweepScheduler(cfg, registry, logger)
	defer stopSweeps()

	if err := startHTTPServer(cfg, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("cachetier", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CACHETIER_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CACHETIER_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// startSweepScheduler 为每个磁盘缓存启动独立的过期清理定时器。
// SweepInterval 为 0 表示关闭定时清理，只依赖读取时的惰性过期。
func startSweepScheduler(cfg *config.Config, registry *server.CacheRegistry, logger *logrus.Logger) func() {
	interval := cfg.Global.SweepInterval.DurationValue()
	disks := registry.DiskHandles()
	if interval <= 0 || len(disks) == 0 {
		return func() {}
	}

	done := make(chan struct{})
	for _, handle := range disks {
		go func(handle *server.CacheHandle) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					removed, err := handle.Sweep()
					if err != nil {
						logger.WithFields(logrus.Fields{
							"action": "sweep",
							"cache":  handle.Name,
							"error":  err.Error(),
						}).Error("定时清理失败")
						continue
					}
					logger.WithFields(logging.SweepFields(handle.Name, removed)).Info("定时清理完成")
				case <-done:
					return
				}
			}
		}(handle)
	}

	return func() { close(done) }
}

func startHTTPServer(cfg *config.Config, registry *server.CacheRegistry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, registry)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
