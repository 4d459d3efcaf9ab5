// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/relabs-tech/gps_bridge/internal/app"
	"github.com/relabs-tech/gps_bridge/internal/config"
)

var configPath string

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"port":                      "SERIAL_PORT",
	"baud":                      "SERIAL_BAUD_RATE",
	"driver":                    "SERIAL_DRIVER",
	"mqtt-host":                 "MQTT_HOST",
	"mqtt-port":                 "MQTT_PORT",
	"mqtt-user":                 "MQTT_USERNAME",
	"mqtt-pass":                 "MQTT_PASSWORD",
	"mqtt-topic":                "TOPIC_DATA",
	"mqtt-control-topic":        "TOPIC_CONTROL",
	"mqtt-status-topic":         "TOPIC_STATUS",
	"mqtt-command-result-topic": "TOPIC_COMMAND_RESULT",
	"device-id":                 "DEVICE_ID",
	"history-file":              "HISTORY_FILE",
	"web":                       "WEB_LISTEN_ADDR",
	"debug":                     "LOG_DEBUG",
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	rootCmd := &cobra.Command{
		Use:   "gps_bridge",
		Short: "GPS serial NMEA to MQTT bridge",
		Long: `Reads NMEA sentences from a GPS receiver on a serial port and publishes
position fixes to an MQTT topic. Streaming is controlled remotely with
start/stop/status/help commands on the control topic.`,
		SilenceUsage: true,
		RunE:         runBridge,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "gps_bridge.conf", "config file (KEY=VALUE, or .yaml/.yml)")
	flags.String("port", "", "serial port, e.g. /dev/ttyAMA0 (default: first detected)")
	flags.Int("baud", 0, "serial baud rate")
	flags.String("driver", "", "serial driver: bugst, jacobsa or sim")
	flags.String("mqtt-host", "", "MQTT broker host")
	flags.Int("mqtt-port", 0, "MQTT broker port")
	flags.String("mqtt-user", "", "MQTT username")
	flags.String("mqtt-pass", "", "MQTT password")
	flags.String("mqtt-topic", "", "data topic")
	flags.String("mqtt-control-topic", "", "control topic for start/stop/status")
	flags.String("mqtt-status-topic", "", "status topic")
	flags.String("mqtt-command-result-topic", "", "command result topic")
	flags.String("device-id", "", "device ID")
	flags.String("history-file", "", "history JSON-lines file")
	flags.String("web", "", "web monitor listen address, e.g. :8080")
	flags.Bool("debug", false, "log raw NMEA and rejected sentences")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(manualCmd())
	rootCmd.AddCommand(portsCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(sendCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.InitGlobal(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()

	var err error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if e := cfg.Set(key, f.Value.String()); e != nil {
			err = fmt.Errorf("--%s: %w", f.Name, e)
		}
	})
	return cfg, err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	log.Printf("starting gps bridge (device %s, broker %s:%d)", cfg.DeviceID, cfg.MQTTHost, cfg.MQTTPort)
	return app.RunBridge(ctx, cfg)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stream GPS fixes to MQTT and serve control commands (default)",
		RunE:  runBridge,
	}
}

func manualCmd() *cobra.Command {
	var lng, lat, speed float64

	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Publish one manual position and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("lng") {
				lng = cfg.ManualLongitude
			}
			if !cmd.Flags().Changed("lat") {
				lat = cfg.ManualLatitude
			}
			if !cmd.Flags().Changed("speed") {
				speed = cfg.ManualSpeedMS
			}
			return app.PublishManual(cfg, lng, lat, speed)
		},
	}
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude in decimal degrees")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&speed, "speed", 0, "speed in m/s")
	return cmd
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List detected serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ports, err := app.ListPorts(cfg.SerialDriver)
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("no serial ports detected")
				return nil
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Print fixes, status and command results published by a bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return app.RunConsole(ctx, cfg, os.Stdout)
		},
	}
}

func sendCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <start|stop|status|help>",
		Short: "Send a control command to a running bridge and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return app.SendCommand(ctx, cfg, args[0], timeout, os.Stdout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the result")
	return cmd
}
