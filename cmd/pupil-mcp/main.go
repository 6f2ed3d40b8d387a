package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ironsheep/pupil-tools-mcp/internal/config"
	"github.com/ironsheep/pupil-tools-mcp/internal/monitoring"
	"github.com/ironsheep/pupil-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("pupil-tools-mcp - MCP server for pupil detection in eye images")
	fmt.Println()
	fmt.Println("Usage: pupil-tools-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH    YAML configuration file (missing file uses defaults)")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  PUPIL_MCP_CONFIG=PATH        Configuration file when --config is not given")
	fmt.Println("  PUPIL_MCP_LOG_LEVEL=debug    Enable debug logging, including detector diagnostics")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func main() {
	configPath := os.Getenv("PUPIL_MCP_CONFIG")

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v", "version":
			fmt.Printf("pupil-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a path")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown option %q\n\n", args[i])
			usage()
			os.Exit(2)
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	logLevel := os.Getenv("PUPIL_MCP_LOG_LEVEL")
	if logLevel == "debug" {
		log.Printf("Pupil MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	} else {
		monitoring.SetLogger(nil)
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			log.Fatalf("Config error: %v", err)
		}
		if logLevel == "debug" {
			log.Printf("Using configuration %s", configPath)
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
