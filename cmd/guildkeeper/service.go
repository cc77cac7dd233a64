package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"guildkeeper/pkg/config"
)

// BotService implements service.Interface around the fx application.
type BotService struct {
	app    *fx.App
	logger service.Logger
}

// NewBotService creates a new bot service.
func NewBotService() *BotService {
	return &BotService{}
}

// Start implements service.Interface.Start
func (s *BotService) Start(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Starting guildkeeper service")
	}

	s.app = newApp(fx.NopLogger)
	go s.app.Run()
	return nil
}

// Stop implements service.Interface.Stop
func (s *BotService) Stop(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Stopping guildkeeper service")
	}
	if s.app == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.app.Stop(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error stopping service: %v", err)
		}
		return err
	}
	return nil
}

// ServiceConfig returns the service configuration. The config file in use
// is passed through so the service reads the same file as the installer.
func ServiceConfig() *service.Config {
	args := []string{"run"}

	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.ConfigPathEnv))
	}
	if path != "" {
		args = append([]string{"-c", path}, args...)
	}

	return &service.Config{
		Name:        "guildkeeper",
		DisplayName: "Guildkeeper",
		Description: "Plugin-based Discord bot",
		Arguments:   args,
	}
}

func newService() (service.Service, *BotService, error) {
	prg := NewBotService()
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("creating service: %w", err)
	}
	return s, prg, nil
}

// RunService runs the bot under the service manager.
func RunService() error {
	s, prg, err := newService()
	if err != nil {
		return err
	}

	logger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = logger

	if err := s.Run(); err != nil {
		logger.Error(err)
		return err
	}
	return nil
}

// controlService performs one of install, uninstall, start, stop, restart.
func controlService(action string) error {
	s, _, err := newService()
	if err != nil {
		return err
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("%s service: %w", action, err)
	}

	fmt.Printf("Service %s succeeded\n", action)
	if action == "install" {
		fmt.Println("Use 'guildkeeper service start' to start the service")
	}
	return nil
}

// StatusService prints the state reported by the service manager.
func StatusService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("getting service status: %w", err)
	}

	fmt.Printf("Service Status: %s\n", statusName(status))
	return nil
}

func statusName(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Running"
	case service.StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage guildkeeper as a system service",
	Long: `Install, remove and control guildkeeper through the system service
manager (systemd, launchd or the Windows service manager).

The service runs 'guildkeeper run' with the same --config flag.`,
}

func init() {
	for _, action := range service.ControlAction {
		action := action
		serviceCmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: strings.ToUpper(action[:1]) + action[1:] + " the system service",
			Run: func(cmd *cobra.Command, args []string) {
				if err := controlService(action); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
			},
		})
	}

	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the system service status",
		Run: func(cmd *cobra.Command, args []string) {
			if err := StatusService(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	})

	rootCmd.AddCommand(serviceCmd)
}
