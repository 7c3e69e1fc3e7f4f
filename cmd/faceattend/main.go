package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrCodeEU/faceattend/pkg/config"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/stage"
)

const version = "0.3.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(ctx context.Context, args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command

	configFile string
	debug      bool
	headless   bool
)

// commandOrder is the order commands appear in the usage text.
var commandOrder = []string{
	"capture", "train", "recognize", "mark", "report",
	"gui", "menu", "download-models", "config", "version", "help",
}

func init() {
	commands = map[string]*Command{
		"capture": {
			Name:        "capture",
			Description: "Capture face samples for a person",
			Usage:       "faceattend capture [name] [id]",
			Run:         cmdCapture,
		},
		"train": {
			Name:        "train",
			Description: "Train the recognition model from the dataset",
			Usage:       "faceattend train",
			Run:         cmdTrain,
		},
		"recognize": {
			Name:        "recognize",
			Description: "Recognize faces and mark attendance",
			Usage:       "faceattend recognize",
			Run:         cmdRecognize,
		},
		"mark": {
			Name:        "mark",
			Description: "Mark attendance manually",
			Usage:       "faceattend mark <name> | faceattend mark --id <id>",
			Run:         cmdMark,
		},
		"report": {
			Name:        "report",
			Description: "Show the attendance of a day",
			Usage:       "faceattend report [YYYY-MM-DD]",
			Run:         cmdReport,
		},
		"gui": {
			Name:        "gui",
			Description: "Start the web console",
			Usage:       "faceattend gui",
			Run:         cmdGUI,
		},
		"menu": {
			Name:        "menu",
			Description: "Start the interactive text menu",
			Usage:       "faceattend menu",
			Run:         cmdMenu,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download the face cascade and dlib models",
			Usage:       "faceattend download-models [dir]",
			Run:         cmdDownloadModels,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "faceattend config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "faceattend version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "faceattend help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&headless, "headless", false, "Run stages without a preview window")
	flag.Parse()

	args := flag.Args()

	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer logging.Close()

	logging.Debugf("faceattend v%s starting", version)

	if len(args) < 1 {
		printUsage()
		return
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd.Run(ctx, args[1:])
	stop()

	if err != nil && !stage.Cancelled(err) {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("faceattend - Face Recognition Attendance")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: faceattend [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("  -headless        Run stages without a preview window")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Printf("  %-16s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  faceattend capture Alice 1   # Save a face sample for Alice, ID 1")
	fmt.Println("  faceattend train             # Fit the model on all samples")
	fmt.Println("  faceattend recognize         # Mark attendance from the webcam")
	fmt.Println("  faceattend gui               # Open the web console")
	fmt.Println("\nRun 'faceattend help <command>' for more information on a command.")
}

func cmdConfig(ctx context.Context, args []string) error {
	logging.Debugf("Showing configuration")

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Camera]")
	fmt.Printf("  Device:          %d\n", cfg.Camera.Device)
	fmt.Printf("  Resolution:      %dx%d\n", cfg.Camera.Width, cfg.Camera.Height)
	fmt.Printf("  Preview:         %t\n", cfg.Camera.Preview)
	fmt.Println()
	fmt.Println("[Detection]")
	fmt.Printf("  Cascade:         %s\n", cfg.Detection.CascadeFile)
	fmt.Printf("  Scale Factor:    %.2f\n", cfg.Detection.ScaleFactor)
	fmt.Printf("  Min Neighbors:   %d\n", cfg.Detection.MinNeighbors)
	fmt.Println()
	fmt.Println("[Recognition]")
	fmt.Printf("  Engine:          %s\n", cfg.Recognition.Engine)
	fmt.Printf("  Model File:      %s\n", cfg.Recognition.ModelFile)
	fmt.Printf("  Threshold:       %.1f\n", cfg.Recognition.Threshold)
	fmt.Printf("  Tolerance:       %.2f\n", cfg.Recognition.Tolerance)
	fmt.Printf("  Model Path:      %s\n", cfg.Recognition.ModelPath)
	fmt.Println()
	fmt.Println("[Dataset]")
	fmt.Printf("  Dir:             %s\n", cfg.Dataset.Dir)
	fmt.Printf("  Samples:         %d\n", cfg.Dataset.Samples)
	fmt.Println()
	fmt.Println("[Attendance]")
	fmt.Printf("  Dir:             %s\n", cfg.Attendance.Dir)
	fmt.Printf("  Window:          %s - %s\n", cfg.Attendance.WindowStart, cfg.Attendance.WindowEnd)
	fmt.Printf("  Database:        %s\n", cfg.Attendance.Database)
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Encryption:      %t\n", cfg.Storage.EncryptionEnabled)
	fmt.Println()
	fmt.Println("[Web]")
	fmt.Printf("  Address:         %s\n", cfg.Addr())
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  File:            %s\n", cfg.Logging.File)

	return nil
}

func cmdVersion(ctx context.Context, args []string) error {
	fmt.Printf("faceattend v%s\n", version)
	fmt.Println("Face Recognition Attendance")
	return nil
}

func cmdHelp(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "capture":
		fmt.Println("\nCapture Process:")
		fmt.Println("  1. Enter a name and a numeric ID when asked")
		fmt.Println("  2. Look at the camera")
		fmt.Println("  3. Press SPACE to save your face, ESC to exit")
	case "recognize":
		fmt.Println("\nAttendance is logged once per person and day,")
		fmt.Println("only inside the configured time window. Press ESC to exit.")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Printf("  Env:    $%s\n", config.EnvConfigPath)
		fmt.Println("  System: /etc/faceattend/faceattend.yaml")
		fmt.Println("  User:   ~/.config/faceattend/faceattend.yaml")
		fmt.Println("\nUse -config flag to specify a custom config file.")
	}

	return nil
}
