package artifact

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// ArtifactRow is one slot of one namespace in the artifacts table.
//
//	CREATE TABLE <dataset>.<table> (
//	  namespace  STRING NOT NULL,
//	  slot       STRING NOT NULL,
//	  content    STRING NOT NULL,
//	  updated_ts TIMESTAMP NOT NULL
//	)
type ArtifactRow struct {
	Namespace string    `bigquery:"namespace"`
	Slot      string    `bigquery:"slot"`
	Content   string    `bigquery:"content"`
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

// BigQueryStore keeps each artifact as a row keyed by (namespace, slot).
// It holds a shared BigQuery client to avoid a connection per operation.
type BigQueryStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	namespace string
}

// NewBigQueryStore creates a BigQueryStore with its own client.
func NewBigQueryStore(ctx context.Context, projectID, datasetID, tableID, namespace string) (*BigQueryStore, error) {
	if projectID == "" || datasetID == "" || tableID == "" {
		return nil, fmt.Errorf("NewBigQueryStore: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryStore: creating client: %w", err)
	}
	return &BigQueryStore{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		namespace: namespace,
	}, nil
}

// Close closes the BigQuery client connection.
func (s *BigQueryStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *BigQueryStore) table() string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, s.tableID)
}

func (s *BigQueryStore) Read(ctx context.Context, slot Slot) ([]byte, error) {
	row, err := s.lookup(ctx, slot)
	if err != nil {
		return nil, err
	}
	if row == nil || row.Content == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, slot)
	}
	return []byte(row.Content), nil
}

// Write upserts the row with a single MERGE statement, which BigQuery applies
// atomically. DML avoids the streaming buffer, so the row is readable at once.
func (s *BigQueryStore) Write(ctx context.Context, slot Slot, content []byte) error {
	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @namespace AS namespace, @slot AS slot) S
		ON T.namespace = S.namespace AND T.slot = S.slot
		WHEN MATCHED THEN
			UPDATE SET content = @content, updated_ts = @updated_ts
		WHEN NOT MATCHED THEN
			INSERT (namespace, slot, content, updated_ts)
			VALUES (@namespace, @slot, @content, @updated_ts)
	`, s.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "namespace", Value: s.namespace},
		{Name: "slot", Value: string(slot)},
		{Name: "content", Value: string(content)},
		{Name: "updated_ts", Value: time.Now()},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("BigQueryStore.Write: %s: %w", slot, err)
	}
	return nil
}

// EnsureSchema creates the artifacts table if it does not exist yet.
func (s *BigQueryStore) EnsureSchema(ctx context.Context) error {
	q := s.client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace  STRING NOT NULL,
			slot       STRING NOT NULL,
			content    STRING NOT NULL,
			updated_ts TIMESTAMP NOT NULL
		)
		CLUSTER BY namespace, slot
	`, s.table()))

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("BigQueryStore.EnsureSchema: %w", err)
	}
	return nil
}

// runQuery runs a DML or DDL statement and waits for it to finish.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func (s *BigQueryStore) Exists(ctx context.Context, slot Slot) (bool, error) {
	row, err := s.lookup(ctx, slot)
	if err != nil {
		return false, err
	}
	return row != nil && row.Content != "", nil
}

func (s *BigQueryStore) lookup(ctx context.Context, slot Slot) (*ArtifactRow, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT namespace, slot, content, updated_ts
		FROM %s
		WHERE namespace = @namespace AND slot = @slot
		ORDER BY updated_ts DESC
		LIMIT 1
	`, s.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "namespace", Value: s.namespace},
		{Name: "slot", Value: string(slot)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQueryStore: %s: reading query: %w", slot, err)
	}

	var row ArtifactRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BigQueryStore: %s: reading row: %w", slot, err)
	}
	return &row, nil
}

var (
	_ Store         = (*BigQueryStore)(nil)
	_ SchemaEnsurer = (*BigQueryStore)(nil)
)
