package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/arkilian/tablets/internal/app"
	"github.com/arkilian/tablets/internal/config"
	"github.com/arkilian/tablets/internal/manifest"
	"github.com/arkilian/tablets/internal/schema"
	"github.com/arkilian/tablets/pkg/types"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// tableArg parses fs and returns its single leading table name argument.
func tableArg(fs *flag.FlagSet, args []string) (string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", fmt.Errorf("table name is required")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return "", err
	}
	return args[0], nil
}

func runCreate(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("create")
	defPath := fs.String("def", "", "Path to the table definition (YAML or JSON)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *defPath == "" {
		return fmt.Errorf("-def is required")
	}

	def, err := config.LoadTableDefinition(*defPath)
	if err != nil {
		return err
	}
	table, ps, splits, err := def.Build()
	if err != nil {
		return err
	}

	tbl, err := a.Catalog().CreateTable(ctx, table, ps, splits)
	if err != nil {
		return err
	}
	fmt.Printf("created table %s with %d partitions\n", tbl.Name(), tbl.PartitionMap().NumPartitions())
	return nil
}

func runDescribe(ctx context.Context, a *app.App, args []string) error {
	name, err := tableArg(newFlagSet("describe"), args)
	if err != nil {
		return err
	}

	tbl, err := a.Catalog().OpenTable(ctx, name)
	if err != nil {
		return err
	}
	tablets, err := a.Catalog().ListTablets(ctx, name)
	if err != nil {
		return err
	}

	s := tbl.Schema()
	fmt.Printf("table %s (version %d)\n\n", s.Name, s.Version)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOLUMN\tTYPE\tKEY\tNULLABLE")
	for i, col := range s.Columns {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%v\n", col.ID, col.Name, col.Type, s.IsKeyColumn(i), col.Nullable)
	}
	w.Flush()

	fmt.Println()
	pmap := tbl.PartitionMap()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTABLET\tPARTITION")
	for i, p := range pmap.Partitions() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.Index, tablets[i].TabletID, pmap.DebugString(p, s))
	}
	return w.Flush()
}

func runLocate(ctx context.Context, a *app.App, args []string) error {
	name, err := tableArg(newFlagSet("locate"), args)
	if err != nil {
		return err
	}

	tbl, err := a.Catalog().OpenTable(ctx, name)
	if err != nil {
		return err
	}

	values := make(map[string]interface{})
	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("expected col=value, got %q", kv)
		}
		values[k] = v
	}
	row, err := types.NewRowFromMap(tbl.Schema(), values)
	if err != nil {
		return err
	}

	pmap := tbl.PartitionMap()
	key, err := pmap.PartitionKey(row)
	if err != nil {
		return err
	}
	p := pmap.PartitionForKey(key)
	tablet, err := manifest.NewTabletPruner(a.Catalog()).TabletForKey(ctx, name, key)
	if err != nil {
		return err
	}

	fmt.Printf("partition key: %x\n", key)
	fmt.Printf("partition:     %d %s\n", p.Index, pmap.DebugString(p, tbl.Schema()))
	fmt.Printf("tablet:        %s\n", tablet.TabletID)
	return nil
}

func runAlter(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("alter")
	var renameColumns, addColumns, dropColumns multiFlag
	renameTable := fs.String("rename-table", "", "New table name")
	fs.Var(&renameColumns, "rename-column", "Rename a column: old=new (repeatable)")
	fs.Var(&addColumns, "add-column", "Add a nullable column: name:type (repeatable)")
	fs.Var(&dropColumns, "drop-column", "Drop a non-key column (repeatable)")
	name, err := tableArg(fs, args)
	if err != nil {
		return err
	}

	var ops []schema.Op
	for _, rc := range renameColumns {
		from, to, ok := strings.Cut(rc, "=")
		if !ok {
			return fmt.Errorf("expected old=new, got %q", rc)
		}
		ops = append(ops, schema.RenameColumn(from, to))
	}
	for _, ac := range addColumns {
		colName, typeName, ok := strings.Cut(ac, ":")
		if !ok {
			return fmt.Errorf("expected name:type, got %q", ac)
		}
		dt, err := types.ParseDataType(typeName)
		if err != nil {
			return err
		}
		ops = append(ops, schema.AddColumn(types.ColumnSchema{Name: colName, Type: dt, Nullable: true}))
	}
	for _, dc := range dropColumns {
		ops = append(ops, schema.DropColumn(dc))
	}
	if *renameTable != "" {
		ops = append(ops, schema.RenameTable(*renameTable))
	}
	if len(ops) == 0 {
		return fmt.Errorf("no alterations given")
	}

	next, err := a.Catalog().AlterTable(ctx, name, ops...)
	if err != nil {
		return err
	}
	fmt.Printf("table %s is at version %d\n", next.Name, next.Version)
	return nil
}

func runDrop(ctx context.Context, a *app.App, args []string) error {
	name, err := tableArg(newFlagSet("drop"), args)
	if err != nil {
		return err
	}
	if err := a.Catalog().DropTable(ctx, name); err != nil {
		return err
	}
	fmt.Printf("dropped table %s\n", name)
	return nil
}

func runList(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("list")
	all := fs.Bool("all", false, "Include dropped tables")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tables, err := a.Catalog().ListTables(ctx, *all)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tVERSION\tTABLETS\tCREATED\tID")
	for _, t := range tables {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			t.Name, t.State, t.Version, t.NumTablets, t.CreatedAt.UTC().Format(time.RFC3339), t.TableID)
	}
	return w.Flush()
}

func runHistory(ctx context.Context, a *app.App, args []string) error {
	name, err := tableArg(newFlagSet("history"), args)
	if err != nil {
		return err
	}
	tableID, err := a.Catalog().TableID(ctx, name)
	if err != nil {
		return err
	}
	versions, err := manifest.NewSchemaVersionManager(a.Catalog()).ListVersions(ctx, tableID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tCOLUMNS\tCREATED")
	for _, v := range versions {
		cols := make([]string, len(v.Schema.Columns))
		for i, c := range v.Schema.Columns {
			cols[i] = c.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			v.Version, v.Schema.Name, strings.Join(cols, ","), v.CreatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func runExport(ctx context.Context, a *app.App, args []string) error {
	name, err := tableArg(newFlagSet("export"), args)
	if err != nil {
		return err
	}
	objectPath, err := a.Catalog().ExportTable(ctx, a.Storage(), a.SnapshotPrefix(), name)
	if err != nil {
		return err
	}
	fmt.Println(objectPath)
	return nil
}

func runImport(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("snapshot object path is required")
	}

	snap, err := manifest.ImportSnapshot(ctx, a.Storage(), fs.Arg(0))
	if err != nil {
		return err
	}
	tbl, err := a.Catalog().RestoreSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	fmt.Printf("restored table %s at version %d\n", tbl.Name(), tbl.Schema().Version)
	return nil
}

func runReconcile(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("reconcile")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := manifest.Reconcile(ctx, a.Catalog(), a.Storage(), a.SnapshotPrefix())
	if err != nil {
		return err
	}

	fmt.Printf("%d tables, %d snapshots\n", report.TotalTables, report.TotalSnapshots)
	for _, s := range report.StaleTables {
		fmt.Printf("stale:    %s at version %d, latest snapshot %d\n", s.Name, s.CurrentVersion, s.LatestSnapshot)
	}
	for _, o := range report.OrphanedSnapshots {
		fmt.Printf("orphaned: %s\n", o)
	}
	if report.HasIssues() {
		return fmt.Errorf("%d stale tables, %d orphaned snapshots", len(report.StaleTables), len(report.OrphanedSnapshots))
	}
	return nil
}
