package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-history-mcp/internal/capture"
	"github.com/ironsheep/image-history-mcp/internal/config"
	"github.com/ironsheep/image-history-mcp/internal/ocr"
	"github.com/ironsheep/image-history-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and --help before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("image-history-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  OCR:        %t\n", ocr.Available())
			fmt.Printf("  Webcam:     %t\n", capture.Available())
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image-history-mcp: %v\n", err)
		os.Exit(2)
	}

	// stdout carries the MCP protocol
	logger := cfg.NewLogger(os.Stderr)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
		"ocr":     ocr.Available(),
		"webcam":  capture.Available(),
	}).Info("starting image history MCP server")

	srv := server.New(
		server.WithConfig(cfg),
		server.WithLogger(logger),
		server.WithVersion(Version),
	)

	runErr := srv.Run()
	if err := srv.Close(); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
	if runErr != nil {
		logger.WithError(runErr).Fatal("server error")
	}
	logger.Info("stdin closed, exiting")
}

func printHelp() {
	fmt.Println("image-history-mcp - MCP server for non-destructive image editing")
	fmt.Println()
	fmt.Println("Usage: image-history-mcp [--config file.yaml]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH    YAML configuration file")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Printf("  %s=path      Configuration file (when --config is not given)\n", config.EnvConfigFile)
	fmt.Printf("  %s=debug  Log level (trace, debug, info, warn, error)\n", config.EnvLogLevel)
	fmt.Printf("  %s=json  Log format (text or json)\n", config.EnvLogFormat)
	fmt.Printf("  %s=dir    Default directory for image_export\n", config.EnvExportDir)
	fmt.Printf("  %s=0   Camera index or stream URL\n", config.EnvWebcamDevice)
	fmt.Printf("  %s=eng  Default OCR language\n", config.EnvOCRLanguage)
	fmt.Println()
	fmt.Println("OCR needs a build with -tags tesseract, webcam capture -tags gocv.")
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
