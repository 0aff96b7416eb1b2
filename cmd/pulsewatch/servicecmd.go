package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/pulsewatch/pulsewatch/internal/app"
	"github.com/pulsewatch/pulsewatch/internal/config"
)

// program adapts app.Run to the kardianos service lifecycle.
type program struct {
	cfgPath string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start implements service.Interface. It must not block.
func (p *program) Start(_ service.Service) error {
	cfg, err := config.Load(p.cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	go func() {
		defer close(p.done)
		if err := app.Run(ctx, cfg, logger, version); err != nil {
			logger.Error("service: run failed", "error", err)
		}
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(_ service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|run>",
		Short:     "Manage pulsewatch as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "restart", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			action := args[0]

			svcConfig := &service.Config{
				Name:        "pulsewatch",
				DisplayName: "pulsewatch",
				Description: "Time-windowed engagement polling for VK wall posts",
				Arguments:   []string{"service", "run", "--config", cfgPath},
			}

			prg := &program{cfgPath: cfgPath}
			svc, err := service.New(prg, svcConfig)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			if action == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Printf("service %s: done\n", action)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", defaultConfigPath, "Path to configuration file")
	return cmd
}
