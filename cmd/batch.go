package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/pipeline"
)

var (
	batchLimit int
	batchOut   string
)

var batchCmd = &cobra.Command{
	Use:   "batch <requests-file>",
	Short: "Plan every trip request in a file",
	Long:  "Reads one request per line (blank lines and lines starting with # are skipped) and plans them concurrently. Results are written as JSON lines in input order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open requests file")
		}
		requests, err := readRequests(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := processBatch(ctx, requests, batchLimit, cfg.Batch.MaxConcurrentRequests, env.Pipeline.Process)
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if batchOut != "" {
			of, err := os.Create(batchOut)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer of.Close() //nolint:errcheck
			out = of
		}
		return writeBatchResults(out, results)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of requests to process")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write results to this file instead of stdout")
	rootCmd.AddCommand(batchCmd)
}

// processFunc plans one request.
type processFunc func(ctx context.Context, text string) *pipeline.Result

// batchResult is one line of batch output.
type batchResult struct {
	Request string        `json:"request"`
	RunID   string        `json:"run_id,omitempty"`
	Payload model.Payload `json:"payload"`
}

// readRequests returns the non-empty, non-comment lines of r.
func readRequests(r io.Reader) ([]string, error) {
	var requests []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		requests = append(requests, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read requests")
	}
	return requests, nil
}

// processBatch applies limit, then plans requests concurrently. Results keep
// input order. A request that ends in an error payload does not stop the batch.
func processBatch(ctx context.Context, requests []string, limit, concurrency int, process processFunc) ([]batchResult, error) {
	if len(requests) == 0 {
		zap.L().Info("no requests found")
		return nil, nil
	}

	if limit > 0 && len(requests) > limit {
		requests = requests[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("requests", len(requests)),
		zap.Int("concurrency", concurrency),
	)

	results := make([]batchResult, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, text := range requests {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := process(gctx, text)
			results[i] = batchResult{Request: text, RunID: res.RunID, Payload: res.Payload}

			log := zap.L().With(zap.Int("index", i), zap.String("run_id", res.RunID))
			if res.Payload.IsError() {
				failed.Add(1)
				log.Warn("request finished with error", zap.String("error", res.Payload.Error))
				return nil
			}
			succeeded.Add(1)
			log.Info("request planned",
				zap.Int("days", len(res.Payload.Days)),
				zap.Float64("total_cost", res.Payload.TotalCost),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

// writeBatchResults writes one JSON object per line.
func writeBatchResults(out io.Writer, results []batchResult) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "write batch result")
		}
	}
	return nil
}
