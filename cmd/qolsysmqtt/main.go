// Command qolsysmqtt bridges a Qolsys IQ Panel's local TLS control
// interface to MQTT, publishing Home Assistant MQTT discovery for every
// partition and zone and accepting arm/disarm/trigger commands back.
//
// Grounded on the teacher's cmd/texecom2mqtt/main.go: flag-parsed config
// path, config.Load, log.NewLogger, wire components, block on shutdown
// signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/qolsys/qolsys2mqtt/internal/config"
	"github.com/qolsys/qolsys2mqtt/internal/control"
	"github.com/qolsys/qolsys2mqtt/internal/log"
	"github.com/qolsys/qolsys2mqtt/internal/model"
	"github.com/qolsys/qolsys2mqtt/internal/mqtt"
	"github.com/qolsys/qolsys2mqtt/internal/mqttsurface"
	"github.com/qolsys/qolsys2mqtt/internal/panellink"
	"github.com/qolsys/qolsys2mqtt/internal/supervisor"
)

func main() {
	configFile := flag.String("config", "", "Optional path to a YAML config file layered under environment variables")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(cfg.LogLevel)

	registry := model.New(cfg.Panel.UniqueID, cfg.Panel.DeviceName)
	link := panellink.New(cfg.Panel, logger)
	plane := control.New(*cfg)

	willTopic := cfg.HA.DiscoveryPrefix + "/device/" + cfg.Panel.UniqueID + "/availability"
	var transport *mqtt.Client
	var surface *mqttsurface.Surface
	transport = mqtt.New(cfg.MQTT, logger, willTopic, "offline", func() {
		_ = transport.Publish(willTopic, []byte("online"), true)
		if surface != nil {
			surface.RediscoverAll()
		}
	})

	router := control.NewRouter(plane, link, logger)

	surface = mqttsurface.New(transport, logger, cfg.HA, cfg.MQTT.Retain, registry, cfg.Panel.UniqueID, cfg.Panel.DeviceName, "", plane.SessionToken, func() { plane.RotateToken() }, func(partitionID int, raw []byte) {
		cmd, err := control.ParseCommand(partitionID, raw)
		if err != nil {
			logger.Warn("dropping unparseable command on partition %d: %v", partitionID, err)
			return
		}
		router.Submit(cmd)
	})
	registry.Observe(surface.Observer())

	sup := supervisor.New(logger)

	sup.Add(supervisor.Child{
		Name: "panellink",
		Run: func(ctx context.Context) error {
			go func() {
				for {
					select {
					case msg, ok := <-link.Inbound():
						if !ok {
							return
						}
						registry.Apply(msg)
					case <-ctx.Done():
						return
					}
				}
			}()
			return link.Run(ctx)
		},
	})

	sup.Add(supervisor.Child{
		Name: "mqtt-transport",
		Run: func(ctx context.Context) error {
			stop := make(chan struct{})
			go func() {
				<-ctx.Done()
				close(stop)
			}()
			return transport.Run(stop)
		},
	})

	sup.Add(supervisor.Child{
		Name: "mqtt-surface",
		Run: func(ctx context.Context) error {
			stop := make(chan struct{})
			go func() {
				<-ctx.Done()
				close(stop)
			}()
			return surface.Run(stop)
		},
	})

	if err := sup.RunUntilSignal(context.Background()); err != nil {
		logger.Error("supervisor exited with error: %v", err)
		os.Exit(2)
	}
}
