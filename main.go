package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/webrip/webrip/internal/config"
	"github.com/webrip/webrip/internal/logging"
	"github.com/webrip/webrip/internal/proxy"
	"github.com/webrip/webrip/internal/server"
	"github.com/webrip/webrip/internal/server/routes"
	"github.com/webrip/webrip/internal/version"
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
		fields["stores"] = config.StoreNames(cfg.Stores)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// CLI 启动遵循“配置 → 日志 → 回源客户端 → StoreRegistry（创建缓存目录） → Fiber server”顺序，
	// 保证所有请求共享统一的 Fetcher 与缓存实例。
	app, registry, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	for _, route := range registry.List() {
		fields := logging.StoreFields(route.Config.Name, route.Dir)
		fields["action"] = "store_ready"
		fields["upstream"] = route.Config.Upstream
		fields["ttl"] = route.CacheTTL.String()
		logger.WithFields(fields).Info("缓存目录就绪")
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["stores"] = config.StoreNames(cfg.Stores)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   cfg.Global.ListenPort,
	}).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("webrip", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 WEBRIP_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("WEBRIP_CONFIG")
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

// buildApp 组装 Fetcher、StoreRegistry、代理 handler 与诊断路由，返回尚未监听的 Fiber 应用。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, *server.StoreRegistry, error) {
	httpClient := server.NewUpstreamClient(cfg)
	fetcher := proxy.NewFetcherFromConfig(httpClient, cfg, logger)

	registry, err := server.NewStoreRegistry(cfg, server.RegistryOptions{
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("构建 Store 注册表失败: %w", err)
	}

	forwarder := proxy.NewForwarder(proxy.NewHandler(fetcher, logger), logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      forwarder,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, nil, err
	}
	routes.RegisterStoreRoutes(app, registry)
	return app, registry, nil
}
