package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ldi/workforce/internal/config"
	"github.com/ldi/workforce/internal/db"
	"github.com/ldi/workforce/internal/mcp"
	"github.com/ldi/workforce/internal/server"
	"github.com/ldi/workforce/internal/service"
	"github.com/ldi/workforce/internal/store"
	"github.com/ldi/workforce/internal/telemetry"
	"github.com/ldi/workforce/internal/ui"
	"github.com/ldi/workforce/internal/ui/components"
	"github.com/ldi/workforce/pkg/models"
)

var (
	configPath   string
	storeKind    string
	dbPath       string
	redisAddr    string
	otlpEndpoint string
	verbose      bool
)

var logger = log.New(os.Stderr, "workforce: ", log.LstdFlags)

func main() {
	flag.StringVar(&configPath, "config", config.DefaultPath, "Path to config file")
	flag.StringVar(&storeKind, "store", "", "Task store (memory, sqlite, redis)")
	flag.StringVar(&dbPath, "db-path", "", "Path to SQLite database file")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address")
	flag.StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	var command string
	var args []string

	if flag.NArg() == 0 {
		selected, err := ui.RunMenu()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running menu: %v\n", err)
			os.Exit(1)
		}
		if selected == "" {
			os.Exit(0)
		}
		command = selected
		args = []string{}
	} else {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	var err error
	switch command {
	case "serve":
		err = runServe(args)
	case "mcp":
		err = runMCP(args)
	case "show":
		err = runShow(args)
	case "list":
		err = runList(args)
	case "assign":
		err = runAssign(args)
	case "export":
		err = runExport(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeKind != "" {
		cfg.Store = storeKind
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}
	if otlpEndpoint != "" {
		cfg.OTLPEndpoint = otlpEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Init(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return database, database.Close, nil
	case config.StoreRedis:
		rs := store.NewRedisStore(store.RedisOptions{Addr: cfg.RedisAddr, KeyPrefix: cfg.RedisKeyPrefix})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return rs, rs.Close, nil
	default:
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
}

// openService wires config, store and tracing into a TaskService. The
// returned cleanup flushes traces and closes the store.
func openService(ctx context.Context) (*service.TaskService, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	deadline, err := cfg.Deadline()
	if err != nil {
		return nil, nil, nil, err
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	tp, shutdown, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}

	if verbose {
		logger.Printf("using %s store, tracing endpoint %q", cfg.Store, cfg.OTLPEndpoint)
	}

	svc := service.New(st, service.Options{
		DefaultDeadline: deadline,
		TracerProvider:  tp,
	})

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Printf("failed to flush traces: %v", err)
		}
		if err := closeStore(); err != nil {
			logger.Printf("failed to close store: %v", err)
		}
	}
	return svc, cfg, cleanup, nil
}

func runServe(args []string) error {
	serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := serveFlags.String("addr", "", "Address to listen on (overrides http_addr)")
	if err := serveFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cfg, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	listenAddr := cfg.HTTPAddr
	if *addr != "" {
		listenAddr = *addr
	}

	srv := server.NewServer(svc, logger)
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", listenAddr)
		errCh <- srv.Start(listenAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(args []string) error {
	svc, _, cleanup, err := openService(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	s := mcp.NewServer(svc)
	return mcp.Serve(s)
}

func runShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: workforce show <task-id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id %q", args[0])
	}

	ctx := context.Background()
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := svc.GetDetails(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(components.NewTaskDetails(t, 80).View())
	return nil
}

func runList(args []string) error {
	listFlags := flag.NewFlagSet("list", flag.ContinueOnError)
	reference := listFlags.Int64("reference", 0, "Filter by reference id")
	priority := listFlags.String("priority", "", "Filter by priority (HIGH, MEDIUM, LOW)")
	assignees := listFlags.String("assignees", "", "Comma-separated assignee ids; lists tasks due in [-start, -end]")
	start := listFlags.Int64("start", 0, "Window start in epoch milliseconds")
	end := listFlags.Int64("end", 0, "Window end in epoch milliseconds (defaults to start + 7 days)")
	if err := listFlags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var (
		tasks []*models.Task
		title string
	)
	switch {
	case *assignees != "":
		ids, err := parseIDs(*assignees)
		if err != nil {
			return err
		}
		windowEnd := *end
		if windowEnd == 0 {
			windowEnd = *start + (7 * 24 * time.Hour).Milliseconds()
		}
		title = fmt.Sprintf("Assignees %s due %s to %s", *assignees,
			components.FormatMillis(*start), components.FormatMillis(windowEnd))
		tasks, err = svc.FetchByAssigneesAndWindow(ctx, ids, *start, windowEnd)
		if err != nil {
			return err
		}
	case *reference != 0:
		title = fmt.Sprintf("Reference %d", *reference)
		tasks, err = svc.GetByReference(ctx, *reference)
	case *priority != "":
		title = fmt.Sprintf("Priority %s", *priority)
		tasks, err = svc.GetByPriority(ctx, models.Priority(strings.ToUpper(*priority)))
	default:
		title = "All tasks"
		tasks, err = svc.ListTasks(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Println(components.NewTaskTable(title, tasks).View())
	return nil
}

func runAssign(args []string) error {
	assignFlags := flag.NewFlagSet("assign", flag.ContinueOnError)
	reference := assignFlags.Int64("reference", 0, "Reference id")
	refType := assignFlags.String("type", string(models.ReferenceTypeOrder), "Reference type (ORDER, ENTITY)")
	assignee := assignFlags.Int64("assignee", 0, "New assignee id")
	priority := assignFlags.String("priority", "", "Priority for the new tasks")
	actor := assignFlags.String("actor", "", "Who is making the change")
	if err := assignFlags.Parse(args); err != nil {
		return err
	}
	if *reference == 0 || *assignee == 0 {
		return fmt.Errorf("usage: workforce assign -reference <id> -assignee <id> [-type ORDER|ENTITY]")
	}

	ctx := context.Background()
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := svc.AssignByReference(ctx, service.AssignByReferenceRequest{
		ReferenceID:   *reference,
		ReferenceType: models.ReferenceType(strings.ToUpper(*refType)),
		AssigneeID:    *assignee,
		Priority:      models.Priority(strings.ToUpper(*priority)),
		Actor:         *actor,
	})
	if err != nil {
		return err
	}

	fmt.Println(summary.Message)
	fmt.Printf("Cancelled: %v\n", summary.CancelledTaskIDs)
	fmt.Printf("Created:   %v\n", summary.CreatedTaskIDs)
	return nil
}

func runExport(args []string) error {
	exportFlags := flag.NewFlagSet("export", flag.ContinueOnError)
	output := exportFlags.String("o", "", "Output file (defaults to stdout)")
	if err := exportFlags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := svc.ExportJSONL(ctx, w)
	if err != nil {
		return err
	}
	if *output != "" {
		fmt.Printf("✓ Exported %d tasks to %s\n", n, *output)
	}
	return nil
}

func parseIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid assignee id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
