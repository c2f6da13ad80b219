// Command sender watches a source directory and streams ready files to a
// receiver over TCP, using a pool of persistent connections.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/postfinance/single"
	stackimpact "github.com/stackimpact/stackimpact-go"
	"gopkg.in/yaml.v2"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/cache"
	"github.com/harsh-quidich/camxfer/dispatch"
	"github.com/harsh-quidich/camxfer/health"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/queue"
	"github.com/harsh-quidich/camxfer/scan"
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

	lock, err := single.New(filepath.Base(conf.SrcDir))
	if err != nil {
		log.Error("failed to initialize instance lock:", err.Error())
		return camxfer.ExitConfig
	}
	if err := lock.Lock(); err != nil {
		log.Error("another sender instance is already watching", conf.SrcDir)
		return camxfer.ExitConfig
	}
	defer lock.Unlock()

	if conf.AgentKey != "" {
		agent := stackimpact.Start(stackimpact.Options{
			AgentKey:   conf.AgentKey,
			AppName:    "camxfer-sender",
			AppVersion: Version,
			Debug:      conf.Verbose,
		})
		span := agent.Profile()
		defer span.Stop()
	}

	var cch *cache.JSON
	if conf.CacheDir != "" {
		if err := os.MkdirAll(conf.CacheDir, 0755); err != nil {
			log.Error("failed to create cache_dir:", err.Error())
			return camxfer.ExitIO
		}
		cch, err = cache.NewJSON(conf.CacheDir, conf.SrcDir)
		if err != nil {
			log.Error("failed to load cache:", err.Error())
			return camxfer.ExitIO
		}
	}

	q := queue.New(conf.Conns*2, queue.DefaultMaxAttempts)
	doneCh := make(chan string, conf.Conns*2)
	scanner, err := scan.New(conf, q, cch, doneCh)
	if err != nil {
		log.Error("failed to initialize scanner:", err.Error())
		return camxfer.ExitConfig
	}

	stats := &camxfer.Stats{}
	dispatcher := dispatch.New(conf, q, stats, doneCh)

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
	go scanner.Run()

	done := make(chan struct{})
	go func() {
		dispatcher.Run()
		close(done)
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("systemd notify not available:", err.Error())
	}
	dogDone := startWatchdog()

	interrupted := false
	select {
	case <-done:
	case <-sc:
		interrupted = true
		log.Info("SENDER received interrupt, draining in-flight transfers...")
		scanner.Stop()
		<-done
	}

	if dogDone != nil {
		close(dogDone)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("systemd notify not available:", err.Error())
	}

	if cch != nil {
		cch.Persist()
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

	if interrupted {
		return camxfer.ExitInterrupted
	}
	if stats.FilesFailed > 0 {
		return camxfer.ExitIO
	}
	return camxfer.ExitOK
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

func loadConf(path string) (*camxfer.SendConf, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	conf := &camxfer.SendConf{}
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, err
	}
	return conf, nil
}
