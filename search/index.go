// Package search maintains the full-text message index. Indexing is a
// best-effort continuation of message persistence: a failed index write
// is logged, never surfaced to the sender.
package search

import (
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"workchat/domain"
)

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// Hit is one search result; the message id is resolved back to the
// full record by the caller.
type Hit struct {
	MessageID string
	RoomID    string
	SenderID  string
	Text      string
	Score     float64
}

func Open(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

// OpenInMemory backs the index with memory only; used by tests.
func OpenInMemory(log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

func (i *Index) IndexMessage(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("text", message.Text).StoreValue()).
		AddField(bluge.NewKeywordField("room", message.RoomID.String()).StoreValue()).
		AddField(bluge.NewKeywordField("sender", message.SenderID).StoreValue()).
		AddField(bluge.NewDateTimeField("at", message.CreatedAt))
	return i.writer.Update(doc.ID(), doc)
}

// Delete removes one message from the index (soft-deleted or cascaded).
func (i *Index) Delete(messageID uuid.UUID) error {
	doc := bluge.NewDocument(messageID.String())
	return i.writer.Delete(doc.ID())
}

func (i *Index) Search(ctx context.Context, roomID, terms string, limit int) ([]Hit, error) {
	if limit < 1 {
		limit = 10
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("text"))
	if roomID != "" {
		query.AddMust(bluge.NewTermQuery(roomID).SetField("room"))
	}

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "room":
				hit.RoomID = string(value)
			case "sender":
				hit.SenderID = string(value)
			case "text":
				hit.Text = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
