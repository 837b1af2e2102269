package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/netysoft/Rag-ChatbotIA/internal/ingest"
	"github.com/netysoft/Rag-ChatbotIA/internal/intake"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
	"github.com/netysoft/Rag-ChatbotIA/internal/upload"
)

// pushPollInterval re-reads the store in case a notification was dropped.
const pushPollInterval = 500 * time.Millisecond

type pushParams struct {
	Endpoint     string
	FieldName    string
	ClientID     string
	AcceptedType string
	Stagger      time.Duration
	Timeout      time.Duration
	Paths        []string
}

func newPushCommand(ctx *commandContext) *cobra.Command {
	var (
		endpoint string
		clientID string
		stagger  time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "push <file>...",
		Short: "Upload PDF files and follow their status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			p := pushParams{
				Endpoint:     cfg.Ingestion.Endpoint,
				FieldName:    cfg.Ingestion.FieldName,
				ClientID:     cfg.Ingestion.DefaultClientID,
				AcceptedType: cfg.Ingestion.AcceptedType,
				Stagger:      cfg.StaggerDelay(),
				Timeout:      cfg.RequestTimeout(),
				Paths:        args,
			}
			if cmd.Flags().Changed("endpoint") {
				p.Endpoint = endpoint
			}
			if cmd.Flags().Changed("client-id") {
				p.ClientID = clientID
			}
			if cmd.Flags().Changed("stagger") {
				p.Stagger = stagger
			}
			if cmd.Flags().Changed("timeout") {
				p.Timeout = timeout
			}

			out := cmd.OutOrStdout()
			return runPush(cmd.Context(), out, p, shouldColorize(out))
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Ingestion endpoint URL")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Caller identity sent as client_id")
	cmd.Flags().DurationVar(&stagger, "stagger", 0, "Delay between consecutive upload starts (0 starts all at once)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-upload request timeout (0 for none)")
	return cmd
}

// runPush submits p.Paths as one batch and blocks until every accepted entry
// settles or ctx is done.
func runPush(ctx context.Context, out io.Writer, p pushParams, colorize bool) error {
	items, err := itemsFromPaths(p.Paths)
	if err != nil {
		return err
	}

	client, err := ingest.NewHTTPClient(ingest.Options{
		Endpoint:  p.Endpoint,
		FieldName: p.FieldName,
		Timeout:   p.Timeout,
	})
	if err != nil {
		return err
	}

	store := status.NewStore(intake.NewID())
	defer store.Close()

	var queueOpts []intake.Option
	if p.AcceptedType != "" {
		queueOpts = append(queueOpts, intake.WithAcceptedType(p.AcceptedType))
	}
	queue := intake.NewQueue(store, queueOpts...)

	stagger := p.Stagger
	if stagger == 0 {
		stagger = upload.NoStagger
	}
	orch, err := upload.NewOrchestrator(upload.Options{
		Store:        store,
		Client:       client,
		CallerID:     p.ClientID,
		StaggerDelay: stagger,
	})
	if err != nil {
		return err
	}

	sub := store.Subscribe(status.DefaultSubscriberBuffer)
	defer sub.Close()

	docs, err := queue.AcceptBatch(items)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("none of the %d files is a PDF", len(items))
	}
	if dropped := len(items) - len(docs); dropped > 0 {
		fmt.Fprintf(out, "Skipping %d file(s) that are not PDFs\n", dropped)
	}
	fmt.Fprintf(out, "Uploading %d file(s) to %s as client %s\n", len(docs), client.Endpoint(), p.ClientID)

	orch.Dispatch(docs)

	poll := time.NewTicker(pushPollInterval)
	defer poll.Stop()

	for !allSettled(store.Snapshot()) {
		select {
		case <-ctx.Done():
			orch.Close()
			store.Close()
			fmt.Fprintln(out, renderEntries(store.Snapshot(), colorize))
			return ctx.Err()
		case t, ok := <-sub.C():
			if !ok {
				return errors.New("status store closed unexpectedly")
			}
			fmt.Fprintln(out, renderTransition(t, colorize))
		case <-poll.C:
		}
	}
	printPending(out, sub, colorize)
	orch.Wait()

	entries := store.Snapshot()
	fmt.Fprintln(out, renderEntries(entries, colorize))
	fmt.Fprintln(out, summarize(entries))

	failed := 0
	for _, e := range entries {
		if e.Status == models.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(entries))
	}
	return nil
}

func printPending(out io.Writer, sub *status.Subscription, colorize bool) {
	for {
		select {
		case t, ok := <-sub.C():
			if !ok {
				return
			}
			fmt.Fprintln(out, renderTransition(t, colorize))
		default:
			return
		}
	}
}

func allSettled(entries []models.Entry) bool {
	for _, e := range entries {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}

// itemsFromPaths builds intake items whose declared type is sniffed from the
// first bytes of each file. Content is reopened at upload time.
func itemsFromPaths(paths []string) ([]intake.Item, error) {
	items := make([]intake.Item, 0, len(paths))
	for _, path := range paths {
		path := path // per-iteration copy; go 1.21 loop variables are shared
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("file does not exist: %s", path)
			}
			return nil, fmt.Errorf("inspect file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}

		contentType, err := sniffContentType(path)
		if err != nil {
			return nil, err
		}

		items = append(items, intake.Item{
			Name:        filepath.Base(path),
			Size:        info.Size(),
			ContentType: contentType,
			Content: models.ContentFunc(func() (io.ReadCloser, error) {
				return os.Open(path)
			}),
		})
	}
	return items, nil
}

func sniffContentType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return http.DetectContentType(buf[:n]), nil
}
