package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stream-pipeline/internal/blob"
	"stream-pipeline/internal/broker"
	"stream-pipeline/internal/config"
	"stream-pipeline/internal/dedup"
	"stream-pipeline/internal/store"
)

const requestTimeout = 2 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "submit":
		err = runSubmit(ctx, os.Args[2:])
	case "status":
		err = runStatus(ctx, os.Args[2:])
	case "cancel":
		err = runCancel(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: pipectl <command> [flags]

Commands:
  submit  -project <id> -file <path> [-resolutions 480p,720p]
          Upload a video and start the pipeline for it.
  status  -project <id> -video <id>
          Print the stored video record as JSON.
  cancel  -video <id>
          Request cancellation of a running job (uses ADMIN_URL).`)
}

func runSubmit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	projectID := fs.String("project", "", "project the video belongs to")
	file := fs.String("file", "", "local path of the source video")
	resList := fs.String("resolutions", "", "comma-separated tiers (default: full ladder)")
	fs.Parse(args)
	if *projectID == "" || *file == "" {
		return fmt.Errorf("submit requires -project and -file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	resolutions := cfg.Resolutions
	if *resList != "" {
		resolutions = strings.Split(*resList, ",")
	}

	info, err := os.Stat(*file)
	if err != nil {
		return err
	}
	fileName := filepath.Base(*file)

	blobs, err := blob.NewS3(ctx, blob.Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		return err
	}

	videos, mongoClient, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer mongoClient.Disconnect(context.Background())

	client, err := broker.NewClient(cfg.KafkaBrokers, cfg.KafkaClientID+"-pipectl")
	if err != nil {
		return err
	}
	defer client.Close()

	uploads := dedup.NewRegistry(videos, cfg.DedupTTL)
	defer uploads.Close()
	intake := dedup.NewIntake(uploads, videos, client, cfg.TaskTopic)

	// The raw upload lives outside any videoID scope; the splitter reads
	// it back by this path.
	sourcePath := fmt.Sprintf("%s/uploads/%s", *projectID, fileName)
	fmt.Printf("Uploading %s (%d bytes) -> %s\n", *file, info.Size(), sourcePath)
	if err := blobs.UploadFile(ctx, *file, sourcePath); err != nil {
		return err
	}

	videoID, duplicate, err := intake.Accept(ctx, *projectID, fileName, info.Size(), sourcePath, resolutions)
	if err != nil {
		return err
	}
	if duplicate {
		fmt.Printf("Duplicate of recent upload, video ID: %s\n", videoID)
		return nil
	}
	fmt.Printf("Submitted, video ID: %s\n", videoID)
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	projectID := fs.String("project", "", "project the video belongs to")
	videoID := fs.String("video", "", "video ID")
	fs.Parse(args)
	if *projectID == "" || *videoID == "" {
		return fmt.Errorf("status requires -project and -video")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	videos, mongoClient, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer mongoClient.Disconnect(context.Background())

	rec, err := videos.Get(ctx, *videoID, *projectID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runCancel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	videoID := fs.String("video", "", "video ID")
	fs.Parse(args)
	if *videoID == "" {
		return fmt.Errorf("cancel requires -video")
	}

	adminURL := os.Getenv("ADMIN_URL")
	if adminURL == "" {
		adminURL = "http://localhost:8080"
	}

	url := fmt.Sprintf("%s/admin/videos/%s/cancel", strings.TrimRight(adminURL, "/"), *videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("cancel rejected with status %d", resp.StatusCode)
	}
	fmt.Printf("Cancellation requested for %s\n", *videoID)
	return nil
}
