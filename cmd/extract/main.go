// Command extract runs the attachment text extractor over local files and
// writes one JSON result per file. It is handy for checking how a document
// will look to the model before uploading it.
//
//	go run ./cmd/extract [-out results.json] [-v] file...
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"Copilot/pkg/apperr"
	"Copilot/pkg/extract"
	"Copilot/pkg/logging"
)

type ResultItem struct {
	File       string `json:"file"`
	Chars      int    `json:"chars"`
	Truncated  bool   `json:"truncated"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Text       string `json:"text,omitempty"`
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []ResultItem) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"file", "chars", "truncated", "duration_ms", "error"}); err != nil {
		return err
	}
	for _, it := range items {
		err := w.Write([]string{
			it.File,
			strconv.Itoa(it.Chars),
			strconv.FormatBool(it.Truncated),
			strconv.FormatInt(it.DurationMs, 10),
			it.Error,
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func runOnce(ctx context.Context, ex *extract.Extractor, path string, withText bool) ResultItem {
	item := ResultItem{File: path}
	f, err := os.Open(path)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		item.Error = err.Error()
		return item
	}

	start := time.Now()
	out, err := ex.Extract(ctx, extract.Upload{Filename: filepath.Base(path), Size: st.Size(), Body: f})
	item.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		item.Error = err.Error()
		item.ErrorKind = apperr.KindOf(err).String()
		return item
	}
	item.Chars = utf8.RuneCountInString(out.Text)
	item.Truncated = item.Chars > extract.MaxTextLength
	if withText {
		item.Text = out.Text
	}
	return item
}

func main() {
	out := flag.String("out", "", "write results to this .json or .csv file instead of stdout")
	withText := flag.Bool("text", false, "include extracted text in the results")
	verbose := flag.Bool("v", false, "log extractor warnings")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: extract [-out file] [-text] [-v] file...")
		os.Exit(2)
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	ex := extract.New(logging.New(os.Stderr, level, "text"))

	ctx := context.Background()
	items := make([]ResultItem, 0, flag.NArg())
	failed := 0
	for _, p := range flag.Args() {
		it := runOnce(ctx, ex, p, *withText)
		if it.Error != "" {
			failed++
		}
		items = append(items, it)
	}

	var err error
	switch filepath.Ext(*out) {
	case "":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(items)
	case ".csv":
		err = writeCSV(*out, items)
	default:
		err = writeJSON(*out, items)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "[warn] %d of %d files failed\n", failed, len(items))
		os.Exit(1)
	}
}
