package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"registration-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// searchDocument is the officer dashboard view of an application.
type searchDocument struct {
	ApplicationID     string           `json:"applicationId"`
	ApplicationNumber string           `json:"applicationNumber"`
	OwnerUserID       string           `json:"ownerUserId"`
	District          string           `json:"district"`
	Kind              models.Kind      `json:"kind"`
	Status            models.Status    `json:"status"`
	LastEvent         models.EventType `json:"lastEvent"`
	LastActorID       string           `json:"lastActorId"`
	InspectionDate    *time.Time       `json:"inspectionDate,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// SearchIndexer keeps one document per application in the dashboard index.
type SearchIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewSearchIndexer(client *elasticsearch.Client, index string) *SearchIndexer {
	return &SearchIndexer{client: client, index: index}
}

func (s *SearchIndexer) Name() string { return "elasticsearch" }

func (s *SearchIndexer) Publish(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(searchDocument{
		ApplicationID:     event.ApplicationID,
		ApplicationNumber: event.ApplicationNumber,
		OwnerUserID:       event.OwnerUserID,
		District:          event.District,
		Kind:              event.Kind,
		Status:            event.Status,
		LastEvent:         event.Type,
		LastActorID:       event.ActorID,
		InspectionDate:    event.InspectionDate,
		UpdatedAt:         event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encode search document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: event.ApplicationID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index application: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index application: %s", res.Status())
	}
	return nil
}

// QueueQuery selects applications for an officer's work queue.
type QueueQuery struct {
	District string
	Statuses []models.Status
	From     int
	Size     int
}

// QueueEntry is one hit of a work queue search.
type QueueEntry struct {
	ApplicationID     string        `json:"applicationId"`
	ApplicationNumber string        `json:"applicationNumber"`
	Status            models.Status `json:"status"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// Queue returns matching applications, oldest update first.
func (s *SearchIndexer) Queue(ctx context.Context, q QueueQuery) ([]QueueEntry, error) {
	if q.Size <= 0 {
		q.Size = 50
	}
	filters := []interface{}{}
	if q.District != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"district": q.District}})
	}
	if len(q.Statuses) > 0 {
		filters = append(filters, map[string]interface{}{"terms": map[string]interface{}{"status": q.Statuses}})
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filters}},
		"sort":  []interface{}{map[string]interface{}{"updatedAt": "asc"}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode queue query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		From:  &q.From,
		Size:  &q.Size,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search queue: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("search queue: %s: %s", res.Status(), msg)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source QueueEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	out := make([]QueueEntry, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
