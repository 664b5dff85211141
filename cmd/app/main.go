package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubertat/servicemaker"

	"github.com/hubertat/ctrlkit"
)

const defaultSyncInterval = "20ms"

var (
	Version string
	Build   string

	config       = flag.String("config", "config.json", "path of the configuration file")
	flagInstall  = flag.Bool("install", false, "Install service in os")
	syncInterval = flag.String("sync", defaultSyncInterval, "sync interval (time.Duration)")

	ckService = servicemaker.ServiceMaker{
		User:               "ctrlkit",
		UserGroups:         []string{"gpio", "i2c"},
		ServicePath:        "/etc/systemd/system/ctrlkit.service",
		ServiceDescription: "ctrlkit service: bank-remapped control surface over virtualized io pins. github.com/hubertat/ctrlkit",
		ExecDir:            "/srv/ctrlkit",
		ExecName:           "ctrlkit",
	}
)

func main() {
	log.Printf("ctrlkit %s started\n", Version)
	flag.Parse()

	if *flagInstall {
		err := ckService.InstallService()
		if err != nil {
			panic(err)
		} else {
			log.Println("service installed!")
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncDuration, err := time.ParseDuration(*syncInterval)
	if err != nil {
		panic(err)
	}

	ck := &ctrlkit.CtrlKit{}
	configFile, err := os.Open(*config)
	if err == nil {
		cBuff, err := io.ReadAll(configFile)
		if err != nil {
			log.Fatalf("failed reading config file: %v\n", err)
		}

		err = json.Unmarshal(cBuff, ck)
		if err != nil {
			log.Fatalf("failed unmarshalling json config: %v", err)
		}
	} else {
		log.Fatalf("can't find/open config file (%s), will terminate. Reason: \n%v\n", *config, err)
	}

	log.Println("will init ctrlkit drivers...")
	err = ck.InitDrivers(ctx)
	defer ck.Close()
	if err != nil {
		panic(err)
	}

	if len(ck.MqttBroker) > 0 {
		log.Println("will connect to mqtt broker...")
		err = ck.InitMqtt()
		if err != nil {
			panic(err)
		}
	}

	log.Println("will init ctrlkit IOs...")
	err = ck.InitIos()
	if err != nil {
		panic(err)
	}

	ck.PrintIoStatus(os.Stdout)

	go ck.StartTicker(syncDuration)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)
	<-c

	log.Println("ctrlkit stopping")
}
