package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phx1999/SDN/middleware"
	"github.com/phx1999/SDN/structs"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var configPath string

// rootCmd runs the routing controller
var rootCmd = &cobra.Command{
	Use:   "sdnroute",
	Short: "SDN routing control plane",
	Long: `sdnroute keeps the switch topology, recomputes all-pairs shortest paths on every
change and distributes the resulting flow table to the switch agents.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		return runController(cmd.Context(), cfg)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild the topology from the event journal and print the flow table report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		return printReport(cmd.Context(), cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default $SDN_CONFIG or "+middleware.DefaultConfigPath+")")
	rootCmd.AddCommand(reportCmd)
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("SDN_CONFIG"); env != "" {
		return env
	}
	return middleware.DefaultConfigPath
}

func setup() (*structs.Config, error) {
	cfg, err := middleware.LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading configuration failed: %w", err)
	}
	if err := initLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg structs.LogConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create log dir %s: %w", cfg.Dir, err)
	}

	// Configure log rotation with lumberjack
	logFile := filepath.Join(cfg.Dir, "sdnroute.log")
	fileLogger := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,  // MB
		MaxBackups: 7,    // Keep 7 old log files
		MaxAge:     30,   // Days
		Compress:   true, // Compress old log files
	}

	// Output to both file and stdout (for systemd)
	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	log.Infof("Logging initialized: file=%s, level=%s, stdout=enabled", logFile, level)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
