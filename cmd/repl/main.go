// Command repl is an interactive SQL shell over internal/db.Database: read
// a statement, execute it, print whatever it produced.
//
// What: A bufio.Scanner-driven loop accumulating input until a terminating
// ';', then running it through Database.Run and formatting the result.
// How: Keeps the source's own REPL shape (the prompt loop, the
// table/csv/tsv/json/yaml/markdown printers, '.meta' command handling)
// but drives internal/db.Database directly instead of database/sql, since
// this port has no database/sql driver of its own. The HTML/WASM
// "beautiful mode" rendering is dropped: it existed to turn a redirected
// batch run into a shareable report, a presentation concern outside this
// port's scope.
// Why: A thin REPL exercises Database/txn/config/logging/maintenance/
// metrics together exactly the way a real host would, rather than needing
// a second harness just to drive the engine interactively.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/barrowdb/barrow/internal/config"
	"github.com/barrowdb/barrow/internal/db"
	"github.com/barrowdb/barrow/internal/logging"
	"github.com/barrowdb/barrow/internal/maintenance"
	"github.com/barrowdb/barrow/internal/metrics"
	"github.com/barrowdb/barrow/internal/sqlvalue"
	"github.com/barrowdb/barrow/internal/storage/stg"
	"github.com/barrowdb/barrow/internal/txn"
)

var (
	flagDataFile   = flag.String("data", "", "path to the database file (empty uses the config file's DataFile, or runs in memory)")
	flagConfig     = flag.String("config", "", "path to a barrow.yaml config file (optional)")
	flagEcho       = flag.Bool("echo", false, "echo SQL statements before execution")
	flagFormat     = flag.String("format", "table", "output format: table, csv, tsv, json, yaml, markdown")
	flagErrorsOnly = flag.Bool("errors-only", false, "only print statements that produce errors")
	flagMetrics    = flag.Bool("metrics", false, "register Prometheus metrics for this session")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})

	var storage stg.Storage
	dataFile := cfg.DataFile
	if *flagDataFile != "" {
		dataFile = *flagDataFile
	}
	if dataFile != "" {
		f, err := stg.NewFile(dataFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open error:", err)
			os.Exit(1)
		}
		storage = f
	} else {
		storage = stg.NewMemory()
	}

	database, err := db.New(storage, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}

	if *flagMetrics {
		database.SetMetrics(metrics.NewMetrics())
	}

	sched, err := maintenance.New(cfg.Maintenance, database)
	if err != nil {
		fmt.Fprintln(os.Stderr, "maintenance error:", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	runREPL(database, *flagEcho, *flagFormat, *flagErrorsOnly)

	database.Save()
}

// replTransaction collects one Run call's output for formatting, and
// satisfies txn.Transaction via txn.DefaultTransaction for everything this
// shell doesn't care about (request params, headers, uploaded files).
type replTransaction struct {
	txn.DefaultTransaction
	cols []string
	rows []map[string]any
	err  string
}

func (t *replTransaction) Columns(names []string) { t.cols = names }

func (t *replTransaction) Selected(values []sqlvalue.Value) {
	row := make(map[string]any, len(values))
	for i, v := range values {
		name := fmt.Sprintf("col%d", i+1)
		if i < len(t.cols) {
			name = t.cols[i]
		}
		row[name] = cellValue(v)
	}
	t.rows = append(t.rows, row)
}

func (t *replTransaction) SetError(err string) { t.err = err }
func (t *replTransaction) GetError() string     { return t.err }

func cellValue(v sqlvalue.Value) any {
	switch v.Kind() {
	case sqlvalue.KindInt:
		return v.Int()
	case sqlvalue.KindFloat:
		return v.Float()
	case sqlvalue.KindBool:
		return v.BoolVal()
	case sqlvalue.KindBinary:
		return v.Bin()
	default:
		return v.Str()
	}
}

func runREPL(database *db.Database, echo bool, format string, errorsOnly bool) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 4*1024*1024)

	var buf strings.Builder
	firstPrompt := true

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	if interactive {
		fmt.Println("barrow REPL. Terminate a statement with ';'. '.help' for help.")
	}

	for {
		if buf.Len() == 0 {
			if interactive {
				if !firstPrompt {
					fmt.Println()
				}
				firstPrompt = false
				fmt.Print("sql> ")
			}
		} else if interactive {
			fmt.Print(" ... ")
		}

		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				fmt.Fprintln(os.Stderr, "read error:", err)
			}
			return
		}

		raw := sc.Text()
		line := strings.TrimSpace(raw)

		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*") {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if handleMeta(database, line) {
				continue
			}
		}

		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			continue
		}

		q := strings.TrimSpace(buf.String())
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
		buf.Reset()

		if echo {
			fmt.Println("--", q)
		}

		t := &replTransaction{}
		if err := database.Run(q, t); err != nil {
			if errorsOnly {
				fmt.Println("--", q)
			}
			fmt.Println("ERR:", t.err)
			continue
		}
		if errorsOnly {
			continue
		}
		if len(t.cols) > 0 {
			printRows(t.rows, t.cols, format)
		} else {
			fmt.Println("(ok)")
		}
	}
}

func handleMeta(database *db.Database, line string) bool {
	switch {
	case line == ".help":
		fmt.Println(`
.meta:
  .help     show this help
  .save     flush pending writes to disk
  .quit     exit`)
		return true
	case line == ".save":
		database.Save()
		fmt.Println("(saved)")
		return true
	case line == ".quit":
		database.Save()
		os.Exit(0)
	}
	return false
}

func printRows(out []map[string]any, cols []string, format string) {
	switch strings.ToLower(format) {
	case "json":
		printJSON(out, cols)
	case "yaml":
		printYAML(out, cols)
	case "csv":
		printCSV(out, cols)
	case "tsv":
		printTSV(out, cols)
	case "markdown", "md":
		printMarkdown(out, cols)
	default:
		printTable(out, cols)
	}
}

func printTable(out []map[string]any, cols []string) {
	width := make([]int, len(cols))
	for i, c := range cols {
		width[i] = len(c)
	}
	for _, r := range out {
		for i, c := range cols {
			if w := len(cell(r[c])); w > width[i] {
				width[i] = w
			}
		}
	}
	for i, c := range cols {
		fmt.Print(padRight(c, width[i]))
		if i < len(cols)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
	for i := range cols {
		fmt.Print(strings.Repeat("-", width[i]))
		if i < len(cols)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
	for _, r := range out {
		for i, c := range cols {
			fmt.Print(padRight(cell(r[c]), width[i]))
			if i < len(cols)-1 {
				fmt.Print("  ")
			}
		}
		fmt.Println()
	}
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func printJSON(out []map[string]any, cols []string) {
	fmt.Println("[")
	for i, r := range out {
		fmt.Print("  {")
		for j, c := range cols {
			if j > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("\"%s\": ", c)
			v := r[c]
			if v == nil {
				fmt.Print("null")
			} else if s, ok := v.(string); ok {
				fmt.Printf("\"%s\"", strings.ReplaceAll(s, "\"", "\\\""))
			} else {
				fmt.Printf("%v", v)
			}
		}
		fmt.Print("}")
		if i < len(out)-1 {
			fmt.Println(",")
		} else {
			fmt.Println()
		}
	}
	fmt.Println("]")
}

func printYAML(out []map[string]any, cols []string) {
	for i, r := range out {
		fmt.Print("- ")
		for j, c := range cols {
			if j > 0 {
				fmt.Print("  ")
			}
			v := r[c]
			if v == nil {
				fmt.Printf("%s: null", c)
			} else if s, ok := v.(string); ok {
				fmt.Printf("%s: \"%s\"", c, s)
			} else {
				fmt.Printf("%s: %v", c, v)
			}
			if j < len(cols)-1 {
				fmt.Println()
			}
		}
		if i < len(out)-1 {
			fmt.Println()
		}
		fmt.Println()
	}
}

func printCSV(out []map[string]any, cols []string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Print(",")
		}
		if strings.ContainsAny(c, ",\"\n") {
			fmt.Printf("\"%s\"", strings.ReplaceAll(c, "\"", "\"\""))
		} else {
			fmt.Print(c)
		}
	}
	fmt.Println()
	for _, r := range out {
		for i, c := range cols {
			if i > 0 {
				fmt.Print(",")
			}
			s := cell(r[c])
			if strings.ContainsAny(s, ",\"\n") {
				fmt.Printf("\"%s\"", strings.ReplaceAll(s, "\"", "\"\""))
			} else {
				fmt.Print(s)
			}
		}
		fmt.Println()
	}
}

func printTSV(out []map[string]any, cols []string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(c)
	}
	fmt.Println()
	for _, r := range out {
		for i, c := range cols {
			if i > 0 {
				fmt.Print("\t")
			}
			fmt.Print(cell(r[c]))
		}
		fmt.Println()
	}
}

func printMarkdown(out []map[string]any, cols []string) {
	width := make([]int, len(cols))
	for i, c := range cols {
		width[i] = len(c)
	}
	for _, r := range out {
		for i, c := range cols {
			if w := len(cell(r[c])); w > width[i] {
				width[i] = w
			}
		}
	}
	fmt.Print("|")
	for i, c := range cols {
		fmt.Print(" ")
		fmt.Print(padRight(c, width[i]))
		fmt.Print(" |")
	}
	fmt.Println()
	fmt.Print("|")
	for i := range cols {
		fmt.Print(strings.Repeat("-", width[i]+2))
		fmt.Print("|")
	}
	fmt.Println()
	for _, r := range out {
		fmt.Print("|")
		for i, c := range cols {
			fmt.Print(" ")
			fmt.Print(padRight(cell(r[c]), width[i]))
			fmt.Print(" |")
		}
		fmt.Println()
	}
}
