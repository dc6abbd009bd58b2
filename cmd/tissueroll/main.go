// Command tissueroll is a thin CLI front-end over the tissueroll package:
// option defaulting, flag parsing, and result printing live here, kept
// deliberately small since spec.md places "CLI wrappers, option
// defaulting, logging" outside the core's scope (§1).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/SimonWaldherr/tissueroll"
	"gopkg.in/yaml.v3"
)

// fileOptions mirrors tissueroll.Options for YAML decoding; durations are
// accepted as Go duration strings ("500ms") rather than nanosecond counts.
type fileOptions struct {
	PayloadSize               int    `yaml:"payloadSize"`
	Overwrite                 bool   `yaml:"overwrite"`
	CommitDebounce            string `yaml:"commitDebounce"`
	CommitDebounceMaximumSkip int    `yaml:"commitDebounceMaximumSkip"`
	CacheLifespan             string `yaml:"cacheLifespan"`
	VerifyChecksums           bool   `yaml:"verifyChecksums"`
	AutoCheckpoint            string `yaml:"autoCheckpoint"`
	DisableJournal            bool   `yaml:"disableJournal"`
}

func loadOptions(path string) (tissueroll.Options, error) {
	var fo fileOptions
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return tissueroll.Options{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(buf, &fo); err != nil {
			return tissueroll.Options{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	opts := tissueroll.Options{
		PayloadSize:               fo.PayloadSize,
		Overwrite:                 fo.Overwrite,
		CommitDebounceMaximumSkip: fo.CommitDebounceMaximumSkip,
		VerifyChecksums:           fo.VerifyChecksums,
		AutoCheckpoint:            fo.AutoCheckpoint,
	}
	if fo.CommitDebounce != "" {
		d, err := time.ParseDuration(fo.CommitDebounce)
		if err != nil {
			return tissueroll.Options{}, fmt.Errorf("parsing commitDebounce: %w", err)
		}
		opts.CommitDebounce = d
	}
	if fo.CacheLifespan != "" {
		d, err := time.ParseDuration(fo.CacheLifespan)
		if err != nil {
			return tissueroll.Options{}, fmt.Errorf("parsing cacheLifespan: %w", err)
		}
		opts.CacheLifespan = d
	}
	if fo.DisableJournal {
		opts = opts.DisableJournal()
	}
	return opts, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `tissueroll: embedded paged record store

Usage:
  tissueroll -db <path> [-config <file>] <command> [args...]

Commands:
  create                 create a new database
  put <text>              insert text, read from stdin if omitted, print its id
  pick <id>               print the record's payload
  update <id> <text>      rewrite a record, print its (possibly new) id
  delete <id>             mark a record deleted
  exists <id>             print true/false
  records <pageIndex>     list every record on the Internal page's chain
  verify                  check the database file's structural invariants`)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tissueroll", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "path to the database file")
	configPath := fs.String("config", "", "optional YAML options file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage()
		return 2
	}
	cmd, rest := rest[0], rest[1:]

	if *dbPath == "" {
		fmt.Fprintln(stderr, "tissueroll: -db is required")
		return 2
	}
	opts, err := loadOptions(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "tissueroll:", err)
		return 1
	}

	if cmd == "create" {
		opts.Overwrite = true
		db, err := tissueroll.Create(*dbPath, opts)
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		defer db.Close()
		fmt.Fprintln(stdout, *dbPath)
		return 0
	}

	db, err := tissueroll.Open(*dbPath, opts)
	if err != nil {
		fmt.Fprintln(stderr, "tissueroll:", err)
		return 1
	}
	defer db.Close()

	switch cmd {
	case "put":
		text, err := textArgOrStdin(rest, stdin)
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		id, err := db.Put(text)
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		fmt.Fprintln(stdout, id)
	case "pick":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "tissueroll: pick requires an id")
			return 2
		}
		result, err := db.Pick(rest[0])
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		fmt.Fprintln(stdout, result.Payload)
	case "update":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "tissueroll: update requires an id")
			return 2
		}
		text, err := textArgOrStdin(rest[1:], stdin)
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		newID, err := db.Update(rest[0], text)
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		fmt.Fprintln(stdout, newID)
	case "delete":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "tissueroll: delete requires an id")
			return 2
		}
		if err := db.Delete(rest[0]); err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
	case "exists":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "tissueroll: exists requires an id")
			return 2
		}
		fmt.Fprintln(stdout, db.Exists(rest[0]))
	case "records":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "tissueroll: records requires a page index")
			return 2
		}
		idx, err := parseUint32(rest[0])
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 2
		}
		recs, err := db.GetRecords(idx)
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		for _, r := range recs {
			fmt.Fprintf(stdout, "%s\tdeleted=%v\t%s\n", r.ID, r.Deleted, r.Payload)
		}
	case "verify":
		issues, err := db.Verify()
		if err != nil {
			fmt.Fprintln(stderr, "tissueroll:", err)
			return 1
		}
		if len(issues) == 0 {
			fmt.Fprintln(stdout, "ok")
			return 0
		}
		for _, issue := range issues {
			fmt.Fprintln(stdout, issue)
		}
		return 1
	default:
		usage()
		return 2
	}
	return 0
}

func textArgOrStdin(rest []string, stdin io.Reader) (string, error) {
	if len(rest) > 0 {
		return strings.Join(rest, " "), nil
	}
	buf, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(buf), "\n"), nil
}

func parseUint32(s string) (uint32, error) {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid page index %q", s)
		}
		v = v*10 + uint64(c-'0')
	}
	return uint32(v), nil
}
