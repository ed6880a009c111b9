package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteStore implements Store over a SQLite database, following the same
// pragma and integrity-check pattern as the project's other SQLite-backed
// stores: WAL mode for concurrent access, a single writer connection, and
// a startup integrity check that clears a corrupted database rather than
// refusing to start.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) a SQLite-backed graph
// store at path. An empty path opens an in-memory store, for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		if err := validateIntegrity(path); err != nil {
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	label      TEXT NOT NULL,
	type       TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);

CREATE TABLE IF NOT EXISTS chunk_nodes (
	id          TEXT PRIMARY KEY,
	file_path   TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	chunk_type  TEXT NOT NULL,
	symbol_name TEXT NOT NULL DEFAULT '',
	symbol_kind TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	order_index INTEGER NOT NULL,
	extra       TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_chunk_nodes_file ON chunk_nodes(file_path);

CREATE TABLE IF NOT EXISTS edges (
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	edge_type  TEXT NOT NULL,
	weight     REAL NOT NULL DEFAULT 0,
	has_weight INTEGER NOT NULL DEFAULT 0,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (from_id, to_id, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}

func encodeProps(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeProps(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// CreateFileNode upserts the file node.
func (s *SQLiteStore) CreateFileNode(ctx context.Context, path, language string, properties map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes(id, kind, label, type, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label=excluded.label, type=excluded.type, properties=excluded.properties
	`, path, string(NodeKindFile), filepath.Base(path), language, encodeProps(properties), time.Now().UnixMilli())
	return err
}

// CreateChunkNodes replaces the chunk set of a file atomically.
func (s *SQLiteStore) CreateChunkNodes(ctx context.Context, filePath string, chunks []*ChunkNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = true
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunk_nodes WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("list existing chunks: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	for _, id := range stale {
		if err := deleteNodeAndEdges(ctx, tx, id); err != nil {
			return err
		}
	}

	now := time.Now().UnixMilli()
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes(id, kind, label, type, properties, created_at)
			VALUES (?, ?, ?, ?, '{}', ?)
			ON CONFLICT(id) DO UPDATE SET label=excluded.label, type=excluded.type
		`, c.ID, string(NodeKindChunk), c.SymbolName, c.ChunkType, now); err != nil {
			return fmt.Errorf("upsert chunk node: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_nodes(id, file_path, content, chunk_type, symbol_name, symbol_kind, language, start_line, end_line, order_index, extra)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				file_path=excluded.file_path, content=excluded.content, chunk_type=excluded.chunk_type,
				symbol_name=excluded.symbol_name, symbol_kind=excluded.symbol_kind, language=excluded.language,
				start_line=excluded.start_line, end_line=excluded.end_line, order_index=excluded.order_index,
				extra=excluded.extra
		`, c.ID, c.FilePath, c.Content, c.ChunkType, c.SymbolName, c.SymbolKind, c.Language,
			c.StartLine, c.EndLine, c.Order, encodeProps(c.Extra)); err != nil {
			return fmt.Errorf("upsert chunk_nodes row: %w", err)
		}
	}

	return tx.Commit()
}

// deleteNodeAndEdges removes a node (and its chunk_nodes row, if any) and
// every edge incident to it.
func deleteNodeAndEdges(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
		return fmt.Errorf("delete incident edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chunk_nodes row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return nil
}

// CreateRelationships is idempotent on (from, to, type).
func (s *SQLiteStore) CreateRelationships(ctx context.Context, edges []*Edge) error {
	if len(edges) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges(from_id, to_id, edge_type, weight, has_weight, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, edge_type) DO UPDATE SET
			weight=excluded.weight, has_weight=excluded.has_weight, properties=excluded.properties
	`)
	if err != nil {
		return fmt.Errorf("prepare edge upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, e := range edges {
		hasWeight := 0
		if e.HasWeight {
			hasWeight = 1
		}
		if _, err := stmt.ExecContext(ctx, e.From, e.To, string(e.Type), e.Weight, hasWeight, encodeProps(e.Properties), now); err != nil {
			return fmt.Errorf("upsert edge %s->%s (%s): %w", e.From, e.To, e.Type, err)
		}
	}

	return tx.Commit()
}

// DeleteFile removes the file node, its chunks, incident edges, and any
// entity that becomes dangling as a result.
func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunk_nodes WHERE file_path = ?`, path)
	if err != nil {
		return fmt.Errorf("list file chunks: %w", err)
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()

	for _, id := range chunkIDs {
		if err := deleteNodeAndEdges(ctx, tx, id); err != nil {
			return err
		}
	}
	if err := deleteNodeAndEdges(ctx, tx, path); err != nil {
		return err
	}

	if _, err := cleanupDanglingEntities(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// cleanupDanglingEntities deletes entity nodes whose incoming edge count
// has dropped to zero, per the invariant that entities are reference-
// counted by their MENTIONS/DEFINED_IN edges. Returns the number removed.
func cleanupDanglingEntities(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT n.id FROM nodes n
		WHERE n.kind = ?
		AND NOT EXISTS (SELECT 1 FROM edges e WHERE e.to_id = n.id)
	`, string(NodeKindEntity))
	if err != nil {
		return 0, fmt.Errorf("find dangling entities: %w", err)
	}
	var dangling []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		dangling = append(dangling, id)
	}
	rows.Close()

	for _, id := range dangling {
		if err := deleteNodeAndEdges(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	return len(dangling), nil
}

// CleanupDanglingEntities deletes entity nodes with zero in-degree,
// returning the number removed. Callers (the orchestrator, a periodic
// timer) invoke this directly; DeleteFile runs it automatically as part
// of its own transaction.
func (s *SQLiteStore) CleanupDanglingEntities(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := cleanupDanglingEntities(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteFileNodes removes only the file nodes for paths (no cascade).
func (s *SQLiteStore) DeleteFileNodes(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range paths {
		if err := deleteNodeAndEdges(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListAllFiles returns every file path currently in the graph.
func (s *SQLiteStore) ListAllFiles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes WHERE kind = ?`, string(NodeKindFile))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		paths = append(paths, id)
	}
	return paths, rows.Err()
}

func scanChunkNode(row interface{ Scan(...interface{}) error }) (*ChunkNode, error) {
	var c ChunkNode
	var extra string
	if err := row.Scan(&c.ID, &c.FilePath, &c.Content, &c.ChunkType, &c.SymbolName, &c.SymbolKind,
		&c.Language, &c.StartLine, &c.EndLine, &c.Order, &extra); err != nil {
		return nil, err
	}
	c.Extra = decodeProps(extra)
	return &c, nil
}

const chunkNodeColumns = `id, file_path, content, chunk_type, symbol_name, symbol_kind, language, start_line, end_line, order_index, extra`

// GetFileChunks returns the chunk nodes belonging to path, in order.
func (s *SQLiteStore) GetFileChunks(ctx context.Context, filePath string) ([]*ChunkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkNodeColumns+` FROM chunk_nodes WHERE file_path = ? ORDER BY order_index ASC`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChunkNode
	for rows.Next() {
		c, err := scanChunkNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunksByIds batch-hydrates chunk nodes.
func (s *SQLiteStore) GetChunksByIds(ctx context.Context, ids []string) ([]*ChunkNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	query, args := inClauseQuery(`SELECT `+chunkNodeColumns+` FROM chunk_nodes WHERE id IN (%s)`, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChunkNode
	for rows.Next() {
		c, err := scanChunkNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LinkChunkToEntity emits a MENTIONS edge, creating the entity node first
// if it doesn't exist (the resolver is the only caller permitted to coin
// new entity ids, per §4.8).
func (s *SQLiteStore) LinkChunkToEntity(ctx context.Context, chunkID string, entity *Node, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("graph store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nodes(id, kind, label, type, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label=excluded.label, type=excluded.type, properties=excluded.properties
	`, entity.ID, string(NodeKindEntity), entity.Label, entity.Type, encodeProps(entity.Properties), now); err != nil {
		return fmt.Errorf("upsert entity node: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO edges(from_id, to_id, edge_type, weight, has_weight, properties, created_at)
		VALUES (?, ?, ?, ?, 1, '{}', ?)
		ON CONFLICT(from_id, to_id, edge_type) DO UPDATE SET weight=excluded.weight, has_weight=1
	`, chunkID, entity.ID, string(EdgeMentions), weight, now); err != nil {
		return fmt.Errorf("upsert mentions edge: %w", err)
	}

	return tx.Commit()
}

// GetRelatedChunks does an undirected BFS up to depth edges over the
// traversable edge types, returning deduplicated chunk ids reached (not
// including the seed ids themselves).
func (s *SQLiteStore) GetRelatedChunks(ctx context.Context, ids []string, depth int) ([]string, error) {
	if len(ids) == 0 || depth <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	visited := make(map[string]bool, len(ids))
	frontier := make([]string, 0, len(ids))
	for _, id := range ids {
		visited[id] = true
		frontier = append(frontier, id)
	}

	typeQuery, typeArgs := inClauseQuery("%s", edgeTypeStrings(traversableEdgeTypes))

	for d := 0; d < depth && len(frontier) > 0; d++ {
		idQuery, idArgs := inClauseQuery("%s", frontier)
		query := fmt.Sprintf(`
			SELECT from_id, to_id FROM edges
			WHERE edge_type IN (%s) AND (from_id IN (%s) OR to_id IN (%s))
		`, typeQuery, idQuery, idQuery)
		args := append(append(append([]interface{}{}, typeArgs...), idArgs...), idArgs...)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("bfs query: %w", err)
		}

		var next []string
		for rows.Next() {
			var from, to string
			if err := rows.Scan(&from, &to); err != nil {
				rows.Close()
				return nil, err
			}
			if !visited[from] {
				visited[from] = true
				next = append(next, from)
			}
			if !visited[to] {
				visited[to] = true
				next = append(next, to)
			}
		}
		rows.Close()
		frontier = next
	}

	for _, id := range ids {
		delete(visited, id)
	}
	if len(visited) == 0 {
		return nil, nil
	}

	reachedIDs := make([]string, 0, len(visited))
	for id := range visited {
		reachedIDs = append(reachedIDs, id)
	}

	kindQuery, kindArgs := inClauseQuery(`SELECT id FROM nodes WHERE kind = ? AND id IN (%s)`, reachedIDs)
	rows, err := s.db.QueryContext(ctx, kindQuery, append([]interface{}{string(NodeKindChunk)}, kindArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("filter chunk nodes: %w", err)
	}
	defer rows.Close()

	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chunkIDs = append(chunkIDs, id)
	}
	return chunkIDs, rows.Err()
}

// GetSampleRelationships returns up to limit edges, for diagnostics.
func (s *SQLiteStore) GetSampleRelationships(ctx context.Context, limit int) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}
	return s.queryEdges(ctx, `SELECT from_id, to_id, edge_type, weight, has_weight, properties, created_at FROM edges LIMIT ?`, limit)
}

// GetRelationshipsByType returns up to limit edges of the given type.
func (s *SQLiteStore) GetRelationshipsByType(ctx context.Context, edgeType EdgeType, limit int) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}
	return s.queryEdges(ctx,
		`SELECT from_id, to_id, edge_type, weight, has_weight, properties, created_at FROM edges WHERE edge_type = ? LIMIT ?`,
		string(edgeType), limit)
}

func (s *SQLiteStore) queryEdges(ctx context.Context, query string, args ...interface{}) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Edge
	for rows.Next() {
		var e Edge
		var edgeType string
		var hasWeight int
		var props string
		var createdAtMillis int64
		if err := rows.Scan(&e.From, &e.To, &edgeType, &e.Weight, &hasWeight, &props, &createdAtMillis); err != nil {
			return nil, err
		}
		e.Type = EdgeType(edgeType)
		e.HasWeight = hasWeight != 0
		e.Properties = decodeProps(props)
		e.CreatedAt = time.UnixMilli(createdAtMillis)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// GetSubgraph returns a BFS-bounded region of the graph rooted at
// filter.RootIDs, used by the Content Loader & LOD component.
func (s *SQLiteStore) GetSubgraph(ctx context.Context, filter SubgraphFilter) (*Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	depth := filter.Depth
	if depth <= 0 {
		depth = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	visited := make(map[string]bool, len(filter.RootIDs))
	frontier := make([]string, 0, len(filter.RootIDs))
	for _, id := range filter.RootIDs {
		visited[id] = true
		frontier = append(frontier, id)
	}

	var edges []*Edge
	for d := 0; d < depth && len(frontier) > 0 && len(visited) < limit; d++ {
		idQuery, idArgs := inClauseQuery("%s", frontier)
		query := fmt.Sprintf(`
			SELECT from_id, to_id, edge_type, weight, has_weight, properties, created_at FROM edges
			WHERE (from_id IN (%s) OR to_id IN (%s))
		`, idQuery, idQuery)
		args := append(append([]interface{}{}, idArgs...), idArgs...)
		if filter.EdgeType != "" {
			query += " AND edge_type = ?"
			args = append(args, string(filter.EdgeType))
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("subgraph bfs query: %w", err)
		}

		var next []string
		for rows.Next() {
			var e Edge
			var edgeType string
			var hasWeight int
			var props string
			var createdAtMillis int64
			if err := rows.Scan(&e.From, &e.To, &edgeType, &e.Weight, &hasWeight, &props, &createdAtMillis); err != nil {
				rows.Close()
				return nil, err
			}
			e.Type = EdgeType(edgeType)
			e.HasWeight = hasWeight != 0
			e.Properties = decodeProps(props)
			e.CreatedAt = time.UnixMilli(createdAtMillis)
			edges = append(edges, &e)

			if !visited[e.From] && len(visited) < limit {
				visited[e.From] = true
				next = append(next, e.From)
			}
			if !visited[e.To] && len(visited) < limit {
				visited[e.To] = true
				next = append(next, e.To)
			}
		}
		rows.Close()
		frontier = next
	}

	if len(visited) == 0 {
		return &Subgraph{}, nil
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	nodeQuery, nodeArgs := inClauseQuery(`SELECT id, kind, label, type, properties, created_at FROM nodes WHERE id IN (%s)`, ids)
	rows, err := s.db.QueryContext(ctx, nodeQuery, nodeArgs...)
	if err != nil {
		return nil, fmt.Errorf("subgraph node query: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		var n Node
		var kind, props string
		var createdAtMillis int64
		if err := rows.Scan(&n.ID, &kind, &n.Label, &n.Type, &props, &createdAtMillis); err != nil {
			return nil, err
		}
		n.Kind = NodeKind(kind)
		n.Properties = decodeProps(props)
		n.CreatedAt = time.UnixMilli(createdAtMillis)
		nodes = append(nodes, &n)
	}

	return &Subgraph{Nodes: nodes, Edges: edges}, rows.Err()
}

// GetStats summarizes node/edge counts.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	stats := &Stats{EdgeCounts: make(map[EdgeType]int)}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE kind = ?`, string(NodeKindFile))
	if err := row.Scan(&stats.FileCount); err != nil {
		return nil, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE kind = ?`, string(NodeKindChunk))
	if err := row.Scan(&stats.ChunkCount); err != nil {
		return nil, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE kind = ?`, string(NodeKindEntity))
	if err := row.Scan(&stats.EntityCount); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT edge_type, COUNT(*) FROM edges GROUP BY edge_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var edgeType string
		var count int
		if err := rows.Scan(&edgeType, &count); err != nil {
			return nil, err
		}
		stats.EdgeCounts[EdgeType(edgeType)] = count
	}

	return stats, rows.Err()
}

// Close releases resources.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func edgeTypeStrings(types []EdgeType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// inClauseQuery builds a query from a %s-templated string plus the
// placeholder list for an IN clause, returning the final query and the
// argument slice (as interface{} for database/sql).
func inClauseQuery(template string, values []string) (string, []interface{}) {
	placeholders := ""
	args := make([]interface{}, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = v
	}
	return fmt.Sprintf(template, placeholders), args
}
