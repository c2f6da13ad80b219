// Command receiver accepts incoming camxfer connections and writes
// finalized files into a destination tree, optionally validating sources,
// exporting to S3, and publishing completion events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	golog "log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	stackimpact "github.com/stackimpact/stackimpact-go"
	"gopkg.in/yaml.v2"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/control"
	"github.com/harsh-quidich/camxfer/export"
	"github.com/harsh-quidich/camxfer/health"
	"github.com/harsh-quidich/camxfer/listener"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/notify"
	"github.com/harsh-quidich/camxfer/stage"
)

// Version is set based on -X option passed at build.
var Version = ""

func main() {
	os.Exit(run())
}

func run() int {
	confPath := flag.String("conf", "", "Configuration file path")
	debug := flag.Bool("debug", false, "Log program flow")
	vers := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *vers {
		fmt.Println(Version)
		return camxfer.ExitOK
	}
	if *confPath == "" {
		golog.Println("missing required -conf flag")
		return camxfer.ExitConfig
	}

	conf, err := loadConf(*confPath)
	if err != nil {
		golog.Println("failed to load configuration:", err)
		return camxfer.ExitConfig
	}
	conf.SetDefaults()
	conf.Verbose = conf.Verbose || *debug
	if err := conf.Validate(); err != nil {
		golog.Println("invalid configuration:", err)
		return camxfer.ExitConfig
	}

	if conf.LogDir != "" {
		if err := os.MkdirAll(conf.LogDir, 0755); err != nil {
			golog.Println("failed to create log_dir:", err)
			return camxfer.ExitIO
		}
	}
	log.Init(conf.LogDir, conf.Verbose)

	if err := os.MkdirAll(conf.OutDir, 0755); err != nil {
		log.Error("failed to create out_dir:", err.Error())
		return camxfer.ExitIO
	}

	if conf.AgentKey != "" {
		agent := stackimpact.Start(stackimpact.Options{
			AgentKey:   conf.AgentKey,
			AppName:    "camxfer-receiver",
			AppVersion: Version,
			Debug:      conf.Verbose,
		})
		span := agent.Profile()
		defer span.Stop()
	}

	var registry *control.Registry
	if conf.RegistryDSN != "" {
		registry, err = control.NewRegistry(conf.RegistryDSN, "")
		if err != nil {
			log.Error("failed to connect to registry:", err.Error())
			return camxfer.ExitIO
		}
		defer registry.Close()
	}

	var hooks []camxfer.FinalStatusService
	if conf.ExportS3Bucket != "" || conf.NotifySQSQueue != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Error("failed to load AWS configuration:", err.Error())
			return camxfer.ExitConfig
		}
		if conf.ExportS3Bucket != "" {
			s3Upload, err := export.NewS3Upload(awsCfg, conf.ExportS3Bucket, conf.ExportS3Prefix)
			if err != nil {
				log.Error("failed to initialize S3 export:", err.Error())
				return camxfer.ExitConfig
			}
			hooks = append(hooks, s3Upload)
		}
		if conf.NotifySQSQueue != "" {
			q, err := notify.NewQueue(awsCfg, conf.NotifySQSQueue)
			if err != nil {
				log.Error("failed to resolve notify queue:", err.Error())
				return camxfer.ExitConfig
			}
			hooks = append(hooks, q)
		}
	}

	stats := &camxfer.Stats{}

	var validator camxfer.Validator
	if registry != nil {
		validator = registry
	}
	baseOpts := stage.Options{
		OutDir:           conf.OutDir,
		UseDestPaths:     conf.UseDestPaths,
		ExpectCountFirst: conf.ExpectCountFirst,
		ChunkBytes:       conf.ChunkBytes,
		Registry:         validator,
		Hooks:            hooks,
		Stats:            stats,
		Verbose:          conf.Verbose,
	}

	servers, err := startListeners(conf, baseOpts)
	if err != nil {
		log.Error("failed to start listener:", err.Error())
		return camxfer.ExitConfig
	}

	var healthSrv *health.Server
	var healthStop, healthDone chan struct{}
	if conf.HealthPort > 0 {
		healthSrv = health.New(conf.HealthPort, stats)
		healthStop = make(chan struct{})
		healthDone = make(chan struct{})
		go healthSrv.Serve(healthStop, healthDone)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, os.Interrupt, syscall.SIGTERM)

	started := time.Now()
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("systemd notify not available:", err.Error())
	}
	dogDone := startWatchdog()

	log.Info("RECEIVER listening on", fmt.Sprintf("%s:%d", conf.ListenIP, conf.Port))
	<-sc
	log.Info("RECEIVER received interrupt, closing listeners...")

	if dogDone != nil {
		close(dogDone)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("systemd notify not available:", err.Error())
	}

	for _, s := range servers {
		s.Close()
	}

	if healthStop != nil {
		close(healthStop)
		<-healthDone
	}

	stats.ElapsedMs = time.Since(started).Milliseconds()
	if conf.JSONStats {
		b, _ := json.Marshal(stats)
		fmt.Println(string(b))
	}

	return camxfer.ExitInterrupted
}

// startListeners binds conf.Workers independent listeners when reuseport is
// enabled (the kernel load-balances accepts across them); otherwise it
// binds exactly one, since only one process may own the port without
// SO_REUSEPORT. Each accepted connection is served by its own stage.Worker.
func startListeners(conf *camxfer.RecvConf, baseOpts stage.Options) ([]*listener.Server, error) {
	handle := func(workerTag string) listener.Handler {
		return func(conn net.Conn) {
			opts := baseOpts
			opts.WorkerID = fmt.Sprintf("%s-%s", workerTag, uuid.NewString())
			stage.New(opts).Serve(conn)
		}
	}

	workers := conf.Workers
	if !conf.Reuseport {
		workers = 1
	}
	var servers []*listener.Server
	for i := 0; i < workers; i++ {
		s, err := listener.Listen(conf.ListenIP, conf.Port, conf.Reuseport)
		if err != nil {
			for _, started := range servers {
				started.Close()
			}
			return nil, err
		}
		servers = append(servers, s)
		go s.Serve(handle(fmt.Sprintf("w%d", i)))
	}
	return servers, nil
}

// startWatchdog pings systemd's watchdog at a third of its configured
// interval, returning nil if no watchdog is configured. Close the returned
// channel to stop it.
func startWatchdog() chan struct{} {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return nil
	}
	stop := make(chan struct{})
	ticker := time.NewTicker(interval / 3)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					log.Error("failed to notify watchdog:", err.Error())
				}
			}
		}
	}()
	return stop
}

func loadConf(path string) (*camxfer.RecvConf, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	conf := &camxfer.RecvConf{}
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, err
	}
	return conf, nil
}
