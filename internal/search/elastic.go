package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/nikhilbhutani/docpipeline/internal/config"
	"github.com/nikhilbhutani/docpipeline/internal/models"
)

// maxFuzziness is the largest edit distance Elasticsearch accepts.
const maxFuzziness = 2

// rawTextField holds the untokenized OCR text, so a term query can match a
// substring that spans words.
const rawTextField = "ocrText.raw"

const indexMapping = `{
  "mappings": {
    "properties": {
      "name":     {"type": "text"},
      "fileType": {"type": "keyword"},
      "fileSize": {"type": "keyword"},
      "ocrText":  {
        "type": "text",
        "fields": {"raw": {"type": "wildcard"}}
      }
    }
  }
}`

type Elastic struct {
	es        *elasticsearch.Client
	fuzziness int
	size      int
	logger    *slog.Logger
}

func NewElastic(cfg config.SearchConfig, logger *slog.Logger) (*Elastic, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	fuzziness := cfg.FuzzyDistance
	if fuzziness > maxFuzziness {
		logger.Info("fuzzy distance clamped to elasticsearch maximum", "configured", fuzziness, "used", maxFuzziness)
		fuzziness = maxFuzziness
	}

	return &Elastic{
		es:        es,
		fuzziness: fuzziness,
		size:      100,
		logger:    logger.With("component", "elastic"),
	}, nil
}

func (e *Elastic) EnsureIndexExists(ctx context.Context, name string) error {
	res, err := e.es.Indices.Exists([]string{name}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return &Error{Op: "exists", Debug: err.Error()}
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return &Error{Op: "exists", Status: res.StatusCode, Debug: res.Status()}
	}

	e.logger.Warn("creating index", "index", name)
	res, err = e.es.Indices.Create(name,
		e.es.Indices.Create.WithContext(ctx),
		e.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return &Error{Op: "create index", Debug: err.Error()}
	}
	defer res.Body.Close()

	if res.IsError() {
		body := readBody(res)
		// Another process may have created it between the two calls.
		if strings.Contains(body, "resource_already_exists_exception") {
			return nil
		}
		return &Error{Op: "create index", Status: res.StatusCode, Debug: body}
	}
	return nil
}

func (e *Elastic) Index(ctx context.Context, doc models.Document, index string) (Response, error) {
	body, err := json.Marshal(RecordFrom(doc))
	if err != nil {
		return Response{}, fmt.Errorf("marshal record: %w", err)
	}

	res, err := e.es.Index(index, bytes.NewReader(body),
		e.es.Index.WithContext(ctx),
		e.es.Index.WithDocumentID(strconv.FormatInt(doc.ID, 10)),
		e.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return Response{DebugInfo: err.Error()}, &Error{Op: "index", Debug: err.Error()}
	}
	defer res.Body.Close()

	debug := readBody(res)
	if res.IsError() {
		return Response{DebugInfo: debug}, &Error{Op: "index", Status: res.StatusCode, Debug: debug}
	}
	return Response{OK: true, DebugInfo: debug}, nil
}

// Delete removes the record for id. A missing record is not an error.
func (e *Elastic) Delete(ctx context.Context, id int64, index string) (Response, error) {
	res, err := e.es.Delete(index, strconv.FormatInt(id, 10),
		e.es.Delete.WithContext(ctx),
		e.es.Delete.WithRefresh("true"),
	)
	if err != nil {
		return Response{DebugInfo: err.Error()}, &Error{Op: "delete", Debug: err.Error()}
	}
	defer res.Body.Close()

	debug := readBody(res)
	if res.StatusCode == http.StatusNotFound {
		return Response{OK: true, DebugInfo: debug}, nil
	}
	if res.IsError() {
		return Response{DebugInfo: debug}, &Error{Op: "delete", Status: res.StatusCode, Debug: debug}
	}
	return Response{OK: true, DebugInfo: debug}, nil
}

type searchResult struct {
	Hits struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source Record `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elastic) Search(ctx context.Context, q Query) ([]models.Document, error) {
	body, err := json.Marshal(e.buildQuery(q))
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(q.Index),
		e.es.Search.WithBody(bytes.NewReader(body)),
		e.es.Search.WithSize(e.size),
	)
	if err != nil {
		return nil, &Error{Op: "search", Debug: err.Error()}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, &Error{Op: "search", Status: res.StatusCode, Debug: readBody(res)}
	}

	var result searchResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, &Error{Op: "search", Status: res.StatusCode, Debug: "decode response: " + err.Error()}
	}

	docs := make([]models.Document, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			e.logger.Warn("skipping hit with non-numeric id", "id", hit.ID)
			continue
		}
		docs = append(docs, hit.Source.Document(id))
	}
	return docs, nil
}

func (e *Elastic) buildQuery(q Query) map[string]any {
	if q.Mode == ModeFuzzy {
		return map[string]any{
			"query": map[string]any{
				"match": map[string]any{
					"ocrText": map[string]any{
						"query":     q.Text,
						"fuzziness": strconv.Itoa(e.fuzziness),
					},
				},
			},
		}
	}

	return map[string]any{
		"query": map[string]any{
			"wildcard": map[string]any{
				rawTextField: map[string]any{
					"value":            "*" + escapeWildcard(strings.ToLower(q.Text)) + "*",
					"case_insensitive": true,
				},
			},
		},
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// escapeWildcard makes user input match literally inside a wildcard pattern.
func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}

func readBody(res *esapi.Response) string {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return res.Status()
	}
	return res.Status() + " " + string(data)
}
