package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only HTML view over the raw keyspace,
// for operators poking at a live instance.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "room:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// DefaultMapper understands the key families of the store: identity:,
// alias:, room:, member:, msg: and msgid:.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      strings.ToUpper(parts[0]),
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    fmt.Sprintf("Size: %d bytes", len(val)),
	}

	switch parts[0] {
	case "identity", "room", "alias":
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
		}
		row.Detail = summarizeJSON(val)
	case "member":
		if len(parts) >= 3 {
			row.EntityID = shorten(parts[1])
			row.Detail = "room " + shorten(parts[2])
		}
	case "msg":
		if len(parts) >= 4 {
			row.EntityID = shorten(parts[3])
			var tsNano int64
			if _, err := fmt.Sscanf(parts[2], "%d", &tsNano); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			row.Detail = summarizeJSON(val)
		}
	case "msgid":
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
			row.Detail = "-> " + string(val)
		}
	}
	return row
}

func summarizeJSON(val []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(val, &decoded); err != nil {
		return fmt.Sprintf("Size: %d bytes", len(val))
	}
	if text, ok := decoded["text"].(string); ok && text != "" {
		return shortenTo(text, 60)
	}
	if name, ok := decoded["name"].(string); ok && name != "" {
		return name
	}
	return fmt.Sprintf("%d fields", len(decoded))
}

func shorten(id string) string {
	return shortenTo(id, 8)
}

func shortenTo(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
