package search

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/ragchat/plugin/ai"
)

// SearchTimeout bounds a single search call.
const SearchTimeout = 15 * time.Second

// defaultVectorRecall is the vector recall depth when TopK is unset.
const defaultVectorRecall = 50

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGConfig configures the Postgres index driver.
type PGConfig struct {
	// Table is the document table name (default: document).
	Table string
	// SourcePageColumn names the source page column (default: sourcepage).
	SourcePageColumn string
	// ContentColumn names the content column (default: content).
	ContentColumn string
}

// PGIndex is a Postgres + pgvector backed document index. Text recall
// uses websearch tsquery ranking, vector recall uses cosine distance,
// and hybrid requests fuse both legs with Reciprocal Rank Fusion.
// Semantic queries run the reranker over the fused recall set.
type PGIndex struct {
	db       *sql.DB
	cfg      PGConfig
	reranker ai.RerankerService
}

// NewPGIndex creates a Postgres index driver.
func NewPGIndex(db *sql.DB, cfg PGConfig, reranker ai.RerankerService) (*PGIndex, error) {
	if cfg.Table == "" {
		cfg.Table = "document"
	}
	if cfg.SourcePageColumn == "" {
		cfg.SourcePageColumn = "sourcepage"
	}
	if cfg.ContentColumn == "" {
		cfg.ContentColumn = "content"
	}
	for _, ident := range []string{cfg.Table, cfg.SourcePageColumn, cfg.ContentColumn} {
		if !identifierPattern.MatchString(ident) {
			return nil, errors.Errorf("invalid identifier: %s", ident)
		}
	}
	return &PGIndex{db: db, cfg: cfg, reranker: reranker}, nil
}

func (x *PGIndex) Search(ctx context.Context, req *Request) ([]*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	top := req.Top
	if top <= 0 {
		top = 3
	}

	excludeCategory, err := parseFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	var textDocs, vectorDocs []*Document
	if req.Text != "" {
		// Recall deeper than top so fusion and reranking have
		// candidates to work with.
		textDocs, err = x.searchText(ctx, req, excludeCategory, maxInt(top, defaultVectorRecall))
		if err != nil {
			return nil, errors.Wrap(err, "text search failed")
		}
	}
	if len(req.Vector) > 0 {
		topK := req.TopK
		if topK <= 0 {
			topK = defaultVectorRecall
		}
		vectorDocs, err = x.searchVector(ctx, req.Vector, excludeCategory, topK)
		if err != nil {
			return nil, errors.Wrap(err, "vector search failed")
		}
	}

	fused := fuseWithRRF(textDocs, vectorDocs)

	if req.QueryType == QueryTypeSemantic && x.reranker != nil && req.Text != "" {
		fused, err = x.rerank(ctx, req.Text, fused, top)
		if err != nil {
			return nil, errors.Wrap(err, "rerank failed")
		}
	}

	if len(fused) > top {
		fused = fused[:top]
	}
	return fused, nil
}

func (x *PGIndex) searchText(ctx context.Context, req *Request, excludeCategory string, limit int) ([]*Document, error) {
	withCaptions := req.QueryType == QueryTypeSemantic && req.QueryCaption != ""

	captionExpr := "NULL"
	if withCaptions {
		captionExpr = fmt.Sprintf(
			`ts_headline('english', %s, websearch_to_tsquery('english', $1), 'MaxFragments=3, FragmentDelimiter=" %s "')`,
			x.cfg.ContentColumn, captionDelimiter)
	}

	where := []string{fmt.Sprintf("to_tsvector('english', %s) @@ websearch_to_tsquery('english', $1)", x.cfg.ContentColumn)}
	args := []any{req.Text}
	if excludeCategory != "" {
		args = append(args, excludeCategory)
		where = append(where, fmt.Sprintf("category <> $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s, %s, %s
		FROM %s
		WHERE %s
		ORDER BY ts_rank_cd(to_tsvector('english', %s), websearch_to_tsquery('english', $1)) DESC
		LIMIT %d
	`, x.cfg.SourcePageColumn, x.cfg.ContentColumn, captionExpr, x.cfg.Table,
		strings.Join(where, " AND "), x.cfg.ContentColumn, limit)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var caption sql.NullString
		if err := rows.Scan(&doc.SourcePage, &doc.Content, &caption); err != nil {
			return nil, err
		}
		if caption.Valid && caption.String != "" {
			doc.Captions = strings.Split(caption.String, " "+captionDelimiter+" ")
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (x *PGIndex) searchVector(ctx context.Context, vector []float32, excludeCategory string, topK int) ([]*Document, error) {
	args := []any{pgvector.NewVector(vector)}
	where := ""
	if excludeCategory != "" {
		args = append(args, excludeCategory)
		where = fmt.Sprintf("WHERE category <> $%d", len(args))
	}

	// <=> is cosine distance; closest first.
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT %d
	`, x.cfg.SourcePageColumn, x.cfg.ContentColumn, x.cfg.Table, where, topK)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.SourcePage, &doc.Content); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (x *PGIndex) rerank(ctx context.Context, query string, docs []*Document, top int) ([]*Document, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	results, err := x.reranker.Rerank(ctx, query, contents, top)
	if err != nil {
		return nil, err
	}
	reranked := make([]*Document, 0, len(results))
	for _, r := range results {
		if r.Index >= 0 && r.Index < len(docs) {
			reranked = append(reranked, docs[r.Index])
		}
	}
	return reranked, nil
}

// captionDelimiter separates extractive caption fragments in the
// ts_headline output.
const captionDelimiter = "|~|"

// filterPattern matches the only supported filter shape:
// category ne '<value>' with embedded quotes doubled.
var filterPattern = regexp.MustCompile(`^category ne '((?:[^']|'')*)'$`)

// parseFilter extracts the excluded category from the OData-style filter
// string. An empty filter means no exclusion.
func parseFilter(filter string) (string, error) {
	if filter == "" {
		return "", nil
	}
	m := filterPattern.FindStringSubmatch(filter)
	if m == nil {
		return "", errors.Errorf("unsupported filter: %s", filter)
	}
	return strings.ReplaceAll(m[1], "''", "'"), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
