package main

import (
	"context"
	"errors"
	"estimate-backend/cmd"
	"estimate-backend/internal/config"
	"estimate-backend/internal/estimate"
	"estimate-backend/internal/pool"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
)

type estimator interface {
	Estimate(ctx context.Context, data io.Reader, declaredName string) (*estimate.Estimate, error)
}

type fileQuote struct {
	Name  string
	Quote estimate.PriceQuote
}

// listModels returns the files in dir with the given extension, sorted by name.
func listModels(dir, extension string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading model directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), extension) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func quoteFile(ctx context.Context, service estimator, path string) (fileQuote, error) {
	file, err := os.Open(path)
	if err != nil {
		return fileQuote{}, err
	}
	defer file.Close()

	result, err := service.Estimate(ctx, file, filepath.Base(path))
	if err != nil {
		return fileQuote{}, err
	}
	return fileQuote{Name: filepath.Base(path), Quote: result.Quote}, nil
}

// quoteAll runs every file through the service and writes one line per file,
// in input order. It returns how many files failed.
func quoteAll(ctx context.Context, service estimator, files []string, workers int, out io.Writer, progress io.Writer) int {
	queue := make(chan string, len(files))
	for _, f := range files {
		queue <- f
	}
	close(queue)

	completed := make(chan pool.CompletedTask[string, fileQuote], len(files))
	pool.RunInPool(func(path string) (fileQuote, error) {
		return quoteFile(ctx, service, path)
	}, queue, completed, workers)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("slicing"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	results := make(map[string]pool.CompletedTask[string, fileQuote], len(files))
	for task := range completed {
		results[task.Input] = task
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	failed := 0
	for _, path := range files {
		task := results[path]
		name := filepath.Base(path)
		if task.Error != nil {
			failed++
			fmt.Fprintf(out, "%s\tFAILED\t%s\n", name, failureReason(task.Error))
			continue
		}
		fmt.Fprintf(out, "%s\t%.2f h\t%.2f\n", name, task.Result.Quote.PrintTimeHours, task.Result.Quote.PriceAmount)
	}
	return failed
}

func failureReason(err error) string {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return "UNREADABLE"
	}
	return estimate.Reason(err)
}

func main() {
	var dir string
	var workers int
	flag.StringVar(&dir, "dir", ".", "directory of models to quote")
	flag.IntVar(&workers, "workers", 2, "number of models to quote concurrently")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cmd.ConfigureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := listModels(dir, estimate.NormalizeExtension(cfg.AllowedExtension))
	if err != nil {
		log.Fatal(err)
	}
	if len(files) == 0 {
		log.Printf("no %s files found in %s", cfg.AllowedExtension, dir)
		return
	}

	service := cmd.CreateEstimateService(cfg, nil, nil)

	if failed := quoteAll(ctx, service, files, workers, os.Stdout, os.Stderr); failed > 0 {
		log.Printf("%d of %d models could not be quoted", failed, len(files))
		os.Exit(1)
	}
}
