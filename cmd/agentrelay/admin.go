package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/agentrelay/internal/adapter/litellm"
	relaynats "github.com/Strob0t/agentrelay/internal/adapter/nats"
	"github.com/Strob0t/agentrelay/internal/adapter/postgres"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/port/agentkind"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
	"github.com/Strob0t/agentrelay/internal/resilience"
	"github.com/Strob0t/agentrelay/internal/service"
	"github.com/Strob0t/agentrelay/internal/workpool"
)

// runAdmin dispatches admin subcommands for operating on executions.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list":
		return runAdminList(args[1:])
	case "show":
		return runAdminShow(args[1:])
	case "approve":
		return runAdminApprove(args[1:])
	case "reject":
		return runAdminReject(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentrelay admin <command> [options]

Commands:
  list      List executions
  show      Print one execution as JSON
  approve   Approve an execution waiting at an approval gate
  reject    Reject an execution waiting at an approval gate
  help      Show this help message

Examples:
  agentrelay admin list --status PENDING_APPROVAL
  agentrelay admin show --id 6f1c...
  agentrelay admin approve --id 6f1c...
  agentrelay admin reject --id 6f1c... --reason "wrong account"
`)
}

// adminDeps is the subset of the server wiring the admin commands need.
type adminDeps struct {
	executor *service.ExecutorService
	review   *service.ReviewService
	cleanup  func()
}

func loadAdminDeps(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Executor.Store != config.StorePostgres {
		return nil, errors.New("admin commands need the postgres execution store")
	}

	log, closeLog := logger.New(config.Logging{Level: "warn", Service: serviceName + "-admin"})
	slog.SetDefault(log)

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		closeLog.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	cleanups := []func(){pool.Close, closeLog.Close}
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}
	store := postgres.NewStore(pool)

	// With a broker, approvals are handed to the running server. Without
	// one the resumption runs here, so the agents must be available.
	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		q, err := relaynats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("nats: %w", err)
		}
		cleanups = append([]func(){func() { _ = q.Drain() }}, cleanups...)
		queue = q
	}

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	registry := service.NewAgentRegistry(agentkind.Deps{LLM: llmClient, Queue: queue, Logger: log})
	if err := registerAgents(registry, cfg.Catalog.AgentsFile, queue != nil); err != nil {
		cleanup()
		return nil, err
	}

	executor := service.NewExecutorService(store, registry, &cfg.Executor)
	executor.SetPool(workpool.New(cfg.Executor.MaxParallel))
	if queue != nil {
		executor.SetQueue(queue)
	}

	return &adminDeps{
		executor: executor,
		review:   service.NewReviewService(store, executor),
		cleanup: func() {
			executor.Wait()
			cleanup()
		},
	}, nil
}

func runAdminList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "", "only list executions in this status")
	limit := fs.Int("limit", 50, "maximum number of executions")
	asJSON := fs.Bool("json", false, "print JSON even on a terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	list, err := deps.executor.List(ctx, execution.Filter{Status: execution.Status(*status), Limit: *limit})
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		return printJSON(os.Stdout, list)
	}
	if len(list) == 0 {
		fmt.Println("No executions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tCURSOR\tRESULTS\tUPDATED\tERROR")
	for i := range list {
		e := &list[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			e.ID, e.Status, e.Cursor, len(e.Results), e.UpdatedAt.Format(time.RFC3339), e.Error)
	}
	return w.Flush()
}

func runAdminShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	id := fs.String("id", "", "execution id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	st, err := deps.executor.Get(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, st)
}

func runAdminApprove(args []string) error {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	id := fs.String("id", "", "execution id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	st, err := deps.review.Approve(ctx, *id)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Execution %s approved (status=%s)\n", st.ID, st.Status)
	return nil
}

func runAdminReject(args []string) error {
	fs := flag.NewFlagSet("reject", flag.ContinueOnError)
	id := fs.String("id", "", "execution id (required)")
	reason := fs.String("reason", "", "rejection reason (prompted on a terminal if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	why := *reason
	if why == "" && term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // fd fits in int
		var err error
		why, err = promptLine("Reason: ")
		if err != nil {
			return fmt.Errorf("read reason: %w", err)
		}
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	st, err := deps.review.Reject(ctx, *id, why)
	if err != nil {
		return fmt.Errorf("reject: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Execution %s rejected\n", st.ID)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// promptLine reads one line from the terminal with line editing.
func promptLine(prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	old, err := term.MakeRaw(fd)
	if err != nil {
		return "", err
	}
	defer func() { _ = term.Restore(fd, old) }()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stderr}, prompt)
	return t.ReadLine()
}
