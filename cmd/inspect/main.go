// Command inspect dumps the raw keyspace of a (possibly live) store as
// a table. It opens the database read-only and bypasses the lock guard
// so it can run next to the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"workchat/internal"
)

type config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	dbPath := flag.String("db", cfg.BadgerFilepath, "Path to badger DB")
	prefix := flag.String("prefix", "room:", "Prefix to scan")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("No database path: set BADGER_FILEPATH or pass -db")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				row := internal.DefaultMapper(string(item.Key()), v)
				table.Append([]string{row.Key, row.Type, row.Timestamp, row.EntityID, row.Detail})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	color.Cyanln(fmt.Sprintf("Scan %q: %d entries", *prefix, count))
	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		// A crashed writer leaves the value log dirty; one writable
		// open truncates it, then reopen read-only.
		repairOpts := badger.DefaultOptions(path).
			WithLogger(nil).WithBypassLockGuard(true)
		db, err = badger.Open(repairOpts)
		if err != nil {
			return nil, fmt.Errorf("repair failed: %w", err)
		}
		_ = db.Close()
		return badger.Open(opts)
	}
	return db, err
}
