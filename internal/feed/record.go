// Package feed keeps the view state of list and detail feeds: it fetches and
// merges working sets, follows live collections and projects the visible
// subset for the selected category and search text.
package feed

import (
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/normalize"
	"github.com/noah-isme/healthwatch-api/internal/observability"
)

// Record is anything identified by a stable id.
type Record interface {
	RecordID() string
}

// Searchable records can be projected by category and text.
type Searchable interface {
	Record
	RecordCategory() string
	SearchText() []string
}

// Decoder turns a raw document into a canonical record and reports which
// fields were resolved through a fallback.
type Decoder[T Record] func(models.Document) (T, []normalize.Fallback)

// ContentDecoder decodes documents of a content collection.
func ContentDecoder(collection string) Decoder[models.ContentRecord] {
	return func(doc models.Document) (models.ContentRecord, []normalize.Fallback) {
		record, gaps := normalize.ContentWithReport(doc)
		record.Collection = collection
		return record, gaps
	}
}

func NotificationDecoder(doc models.Document) (models.NotificationRecord, []normalize.Fallback) {
	return normalize.Notification(doc), nil
}

func MessageDecoder(doc models.Document) (models.MessageRecord, []normalize.Fallback) {
	return normalize.Message(doc), nil
}

func ChatDecoder(doc models.Document) (models.ChatRecord, []normalize.Fallback) {
	return normalize.Chat(doc), nil
}

func decodeAll[T Record](decode Decoder[T], docs []models.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		record, gaps := decode(doc)
		for _, gap := range gaps {
			observability.NormalizationFallbacks().WithLabelValues(gap.Field, gap.Source).Inc()
		}
		out = append(out, record)
	}
	return out
}
