package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"
)

type ESClient struct {
	Client *elasticsearch.Client
	config *config.ElasticsearchConfig
}

func NewElasticsearchClient(cfg *config.Config, logger *zap.Logger) (*ESClient, error) {
	esConfig := cfg.Elasticsearch

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.IsDevelopment(), // Skip verify in dev only
		MinVersion:         tls.VersionTLS12,
	}

	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esConfig.URL},
		Username:  esConfig.Username,
		Password:  esConfig.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	esClient := &ESClient{
		Client: client,
		config: &esConfig,
	}

	if err := esClient.HealthCheck(context.Background()); err != nil {
		return nil, fmt.Errorf("elasticsearch connection test failed: %w", err)
	}

	logger.Info("Elasticsearch client initialized",
		zap.String("url", esConfig.URL),
		zap.String("index", esConfig.Index),
	)

	return esClient, nil
}

func (e *ESClient) Close() {
	util.Info("Elasticsearch client shutdown")
}

func (e *ESClient) HealthCheck(ctx context.Context) error {
	res, err := e.Client.Info(e.Client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to get cluster info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (e *ESClient) IndexDocument(ctx context.Context, index, id string, document interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(document); err != nil {
		return fmt.Errorf("error encoding document: %w", err)
	}

	res, err := e.Client.Index(
		index,
		&buf,
		e.Client.Index.WithContext(ctx),
		e.Client.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("error indexing document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.Status())
	}
	return nil
}

// BulkIndex writes documents keyed by id in a single _bulk request.
func (e *ESClient) BulkIndex(ctx context.Context, index string, docs map[string]interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for id, doc := range docs {
		meta := map[string]map[string]string{"index": {"_index": index, "_id": id}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("error encoding bulk meta: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("error encoding document: %w", err)
		}
	}

	res, err := e.Client.Bulk(&buf, e.Client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error executing bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk error: %s", res.Status())
	}

	var body struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("error parsing bulk response: %w", err)
	}
	if body.Errors {
		return fmt.Errorf("elasticsearch bulk request had item errors")
	}
	return nil
}
