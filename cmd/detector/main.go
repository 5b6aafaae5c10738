package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DROWSY_MONITOR/go-detector/internal/config"
	"DROWSY_MONITOR/go-detector/internal/detector"
	"DROWSY_MONITOR/go-detector/internal/services"
	"DROWSY_MONITOR/go-detector/internal/storage"
)

func main() {
	thresh := flag.Float64("thresh", 0, "EAR threshold for drowsiness (overrides env)")
	frameCheck := flag.Int("frame-check", 0, "Consecutive low-EAR frames to trigger an alert (overrides env)")
	landmarkURL := flag.String("landmark-url", "", "Landmark service WebSocket URL (overrides env)")
	logFile := flag.String("log-file", "", "Session log file (overrides env)")
	sessionID := flag.String("session-id", "", "Session ID for this run")
	output := flag.String("output", "", "Per-session report file")
	autoStop := flag.Int("auto-stop", -1, "Auto stop after N seconds, 0 disables (overrides env)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *thresh > 0 {
		cfg.EARThreshold = *thresh
	}
	if *frameCheck > 0 {
		cfg.FrameCheckCount = *frameCheck
	}
	if *landmarkURL != "" {
		cfg.LandmarkURL = *landmarkURL
	}
	if *logFile != "" {
		cfg.SessionLogFile = *logFile
	}
	if *autoStop >= 0 {
		cfg.AutoStopSeconds = *autoStop
	}

	log.Println("Starting detection run...")
	log.Printf("EAR threshold: %v", cfg.EARThreshold)
	log.Printf("Frame check count: %d", cfg.FrameCheckCount)
	log.Printf("Landmark service: %s", cfg.LandmarkURL)
	if cfg.AutoStopSeconds > 0 {
		log.Printf("Auto stop: %ds", cfg.AutoStopSeconds)
	}

	det, err := detector.New(cfg.EARThreshold, uint(cfg.FrameCheckCount))
	if err != nil {
		log.Fatalf("Invalid detection settings: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		log.Println("Shutting down...")
		cancel()
	}()

	client, err := services.NewLandmarkClient(ctx, cfg.LandmarkURL, cfg.LandmarkHealthAddr)
	if err != nil {
		log.Fatalf("Landmark service unavailable: %v", err)
	}
	defer client.Close()

	// Unblock the frame read when shutdown is requested
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	store := storage.NewLogStore(cfg.SessionLogFile)
	run := services.NewDetectionRun(services.RunConfig{
		SessionID:  *sessionID,
		OutputFile: *output,
		AutoStop:   time.Duration(cfg.AutoStopSeconds) * time.Second,
		LogEvery:   300,
	}, det, store)

	if _, err := run.Run(ctx, client); err != nil {
		log.Fatalf("Detection run failed: %v", err)
	}

	log.Println("Goodbye!")
}
