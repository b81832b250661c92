package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

func doc(id string, data map[string]any) models.Document {
	return models.Document{ID: id, Data: data}
}

func ids(docs []models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestApplyOrdersAndExcludesMissingField(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	docs := []models.Document{
		doc("a", map[string]any{"createdAt": base}),
		doc("b", map[string]any{"timestamp": base.Add(time.Hour)}),
		doc("c", map[string]any{"createdAt": base.Add(2 * time.Hour).Format(time.RFC3339Nano)}),
		doc("d", map[string]any{"createdAt": base.Add(-time.Hour)}),
	}

	out := Apply(Query{OrderBy: "createdAt", Direction: Desc}, docs)
	require.Equal(t, []string{"c", "a", "d"}, ids(out))

	out = Apply(Query{OrderBy: "createdAt", Direction: Asc, Limit: 2}, docs)
	require.Equal(t, []string{"d", "a"}, ids(out))
}

func TestApplyFilters(t *testing.T) {
	docs := []models.Document{
		doc("1", map[string]any{"userId": "u1", "status": "unread", "scope": map[string]any{"state": "Lagos"}}),
		doc("2", map[string]any{"userId": "u2", "status": "unread"}),
		doc("3", map[string]any{"userId": "u1", "status": "read", "participantIds": []any{"u1", "u9"}}),
	}

	out := Apply(Query{Where: []Filter{{Field: "userId", Value: "u1"}}}, docs)
	require.Equal(t, []string{"1", "3"}, ids(out))

	out = Apply(Query{Where: []Filter{{Field: "scope.state", Value: "Lagos"}}}, docs)
	require.Equal(t, []string{"1"}, ids(out))

	out = Apply(Query{ArrayContains: &Filter{Field: "participantIds", Value: "u9"}}, docs)
	require.Equal(t, []string{"3"}, ids(out))
}

func TestCompareValuesMixesNumericTypes(t *testing.T) {
	require.Equal(t, 0, compareValues(3, float64(3)))
	require.Equal(t, -1, compareValues(int64(2), 2.5))
	require.Equal(t, 1, compareValues("b", "a"))
}

func TestSetPathCreatesIntermediateMaps(t *testing.T) {
	data := map[string]any{"poll": "legacy"}
	setPath(data, "poll.tally.1", 2)
	setPath(data, "title", "Malaria")

	poll, ok := data["poll"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, map[string]any{"1": 2}, poll["tally"])
	require.Equal(t, "Malaria", data["title"])
}

func TestQueryKeyIsDeterministic(t *testing.T) {
	q := Query{
		Collection: "notifications",
		Where:      []Filter{{Field: "userId", Value: "u1"}},
		OrderBy:    "createdAt",
		Direction:  Desc,
		Limit:      20,
	}
	require.Equal(t, "notifications|userId=u1|order:createdAt:desc|limit:20", q.Key())
}
