// permctl 命令行查看和修改单个用户/角色的权限矩阵
//
//	permctl show   --subject u-1
//	permctl grant  --subject u-1 --cell event.create --cell finance.view
//	permctl revoke --subject u-1 --cell gallery.delete
//	permctl export --subject u-1 --out u-1.xlsx [--cell member.update]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"family-admin/internal/cache"
	"family-admin/internal/client"
	"family-admin/internal/config"
	"family-admin/internal/domain"
	"family-admin/internal/logger"
	"family-admin/internal/permission"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var errUsage = errors.New("usage: permctl show|grant|revoke|export --subject <id> [flags]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command := args[0]
	switch command {
	case "-h", "--help", "help":
		fmt.Fprintln(stdout, errUsage.Error())
		return nil
	case cmdShow, cmdGrant, cmdRevoke, cmdExport:
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}

	var opts options
	var envFile string
	flagSet := pflag.NewFlagSet("permctl "+command, pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&opts.subject, "subject", "", "user or role id")
	flagSet.StringVar(&opts.kind, "kind", string(domain.SubjectUser), "subject kind: user or role")
	flagSet.StringArrayVar(&opts.cells, "cell", nil, "permission cell as entity.action (repeatable)")
	flagSet.StringVarP(&opts.out, "out", "o", "", "output .xlsx path (export)")
	flagSet.BoolVar(&opts.cached, "cached", false, "show: print the cached baseline without contacting the API")
	flagSet.StringVar(&envFile, "env-file", ".env", "optional .env file")
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if err := opts.validate(command); err != nil {
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log, err := logger.NewStderrLogger(cfg.Log.Level, cfg.Log.Format, "permctl")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ed, baselines, cleanup := newEditor(cfg, log)
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if opts.cached {
		return showCached(ctx, opts, baselines, stdout)
	}
	return execute(ctx, command, opts, ed, stdout)
}

// newEditor 组装 client、synchronizer 和可选的 Redis baseline 缓存
// 缓存未启用时返回的 *cache.BaselineCache 为 nil
func newEditor(cfg *config.Config, log *zap.Logger) (*permission.Editor, *cache.BaselineCache, func()) {
	api := client.NewClient(client.Options{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		RetryCount:    cfg.API.RetryCount,
		SessionCookie: cfg.API.SessionCookie,
	}, log)
	synchronizer := permission.NewSynchronizer(api, cfg.Save.MaxInFlight, log)

	if !cfg.Cache.Enabled {
		return permission.NewEditor(api, synchronizer, log), nil, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	baselines := cache.NewBaselineCache(api, cache.NewRedisKV(redisClient), cfg.Cache.TTL, log)
	ed := permission.NewEditor(baselines, synchronizer, log)
	ed.SetObserver(baselines)
	return ed, baselines, func() { _ = redisClient.Close() }
}
