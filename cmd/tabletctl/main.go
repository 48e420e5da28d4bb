// Package main implements tabletctl, the command-line tool that creates,
// inspects and alters partitioned tables in the tablet catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arkilian/tablets/internal/app"
	"github.com/arkilian/tablets/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// command is a tabletctl subcommand.
type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app.App, args []string) error
}

var commands = []command{
	{"create", "create -def <file>", "Create a table from a YAML or JSON definition", runCreate},
	{"describe", "describe <table>", "Show the schema and partitions of a table", runDescribe},
	{"locate", "locate <table> col=value...", "Show the partition and tablet of a row", runLocate},
	{"alter", "alter <table> [alteration flags]", "Alter the schema of a table", runAlter},
	{"drop", "drop <table>", "Drop a table", runDrop},
	{"list", "list [-all]", "List tables", runList},
	{"history", "history <table>", "List the schema versions of a table", runHistory},
	{"export", "export <table>", "Export a snapshot of a table to storage", runExport},
	{"import", "import <object-path>", "Restore a table from an exported snapshot", runImport},
	{"reconcile", "reconcile", "Compare active tables with exported snapshots", runReconcile},
}

func main() {
	var (
		configFile  string
		dataDir     string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tabletctl - partitioned table catalog tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tabletctl [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "  %-36s %s\n", c.usage, c.summary)
		}
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tabletctl create -def metrics.yaml\n")
		fmt.Fprintf(os.Stderr, "  tabletctl locate metrics host=web01 metric=cpu time=2024-01-01T00:00:00Z\n")
		fmt.Fprintf(os.Stderr, "  tabletctl alter people -rename-column age=years -add-column email:string\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TABLETS_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  TABLETS_MAX_PARTITIONS  Partition limit for new tables\n")
		fmt.Fprintf(os.Stderr, "  TABLETS_STORAGE_TYPE    Snapshot storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  TABLETS_S3_BUCKET       Snapshot bucket for s3 storage\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("tabletctl version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cmd, ok := findCommand(flag.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}

	runErr := cmd.run(ctx, a, flag.Args()[1:])
	if err := a.Close(); err != nil {
		log.Printf("[WARN] tabletctl: close failed: %v", err)
	}
	if runErr != nil {
		log.Fatalf("%s: %v", cmd.name, runErr)
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}

// multiFlag collects the values of a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
