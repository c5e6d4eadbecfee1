// Package memdb provides an in-memory docdb implementation for tests.
//
// Documents are round-tripped through BSON on every write and read so
// callers see the same Go types the MongoDB driver produces. Filters
// support field equality and the $eq, $ne, $gt, $gte, $lt, $lte and $in
// operators; updates support $set.
package memdb

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
)

// Client implements docdb.Client in memory.
type Client struct {
	mu        sync.Mutex
	databases map[string]*Database
	closed    bool
}

// NewClient creates an empty in-memory client.
func NewClient() *Client {
	return &Client{databases: make(map[string]*Database)}
}

// Database returns the named database, creating it on first use.
func (c *Client) Database(name string) docdb.Database {
	return c.DB(name)
}

// DB is Database with the concrete type, for test assertions.
func (c *Client) DB(name string) *Database {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, ok := c.databases[name]
	if !ok {
		db = &Database{
			name:        name,
			collections: make(map[string]*Collection),
			bucket:      &Bucket{files: make(map[primitive.ObjectID]file)},
		}
		c.databases[name] = db
	}
	return db
}

// Ping fails once the client is closed.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}

// Close marks the client closed.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Database implements docdb.Database in memory.
type Database struct {
	mu          sync.Mutex
	name        string
	collections map[string]*Collection
	bucket      *Bucket
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// Collection returns the named collection, creating it on first use.
func (d *Database) Collection(name string) docdb.Collection {
	return d.Coll(name)
}

// Coll is Collection with the concrete type, for test assertions.
func (d *Database) Coll(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	coll, ok := d.collections[name]
	if !ok {
		coll = &Collection{name: name}
		d.collections[name] = coll
	}
	return coll
}

// Bucket returns the database's blob store.
func (d *Database) Bucket() (docdb.Bucket, error) {
	return d.bucket, nil
}

// Files is Bucket with the concrete type, for test assertions.
func (d *Database) Files() *Bucket {
	return d.bucket
}

// ListCollectionNames lists the collections created so far.
func (d *Database) ListCollectionNames(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Collection implements docdb.Collection in memory.
type Collection struct {
	mu      sync.Mutex
	name    string
	docs    []bson.M
	indexes []string
	unique  [][]string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Indexes returns the names of the indexes created on the collection.
func (c *Collection) Indexes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.indexes...)
}

// Docs returns copies of the stored documents.
func (c *Collection) Docs() []bson.M {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]bson.M, 0, len(c.docs))
	for _, doc := range c.docs {
		cp, _ := normalize(doc)
		out = append(out, cp)
	}
	return out
}

// InsertOne stores document, generating an ObjectID _id when missing.
func (c *Collection) InsertOne(ctx context.Context, document interface{}) (interface{}, error) {
	doc, err := normalize(document)
	if err != nil {
		return nil, err
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.docs {
		if equal(existing["_id"], doc["_id"]) {
			return nil, fmt.Errorf("%w: _id %v", docdb.ErrDuplicateKey, doc["_id"])
		}
		for _, fields := range c.unique {
			if sameKey(existing, doc, fields) {
				return nil, fmt.Errorf("%w: %v", docdb.ErrDuplicateKey, fields)
			}
		}
	}
	c.docs = append(c.docs, doc)
	return doc["_id"], nil
}

// FindOne returns the first document matching filter.
func (c *Collection) FindOne(ctx context.Context, filter interface{}) docdb.SingleResult {
	docs, err := c.match(filter)
	if err != nil {
		return &SingleResult{err: err}
	}
	if len(docs) == 0 {
		return &SingleResult{err: docdb.ErrNoDocuments}
	}
	return &SingleResult{doc: docs[0]}
}

// Find returns the documents matching filter.
func (c *Collection) Find(ctx context.Context, filter interface{}, opts *docdb.FindOptions) (docdb.Cursor, error) {
	docs, err := c.match(filter)
	if err != nil {
		return nil, err
	}

	if opts != nil {
		if opts.Sort != nil {
			spec, err := toD(opts.Sort)
			if err != nil {
				return nil, err
			}
			sortDocs(docs, spec)
		}
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(docs)) {
				docs = nil
			} else {
				docs = docs[opts.Skip:]
			}
		}
		if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
			docs = docs[:opts.Limit]
		}
		if opts.Projection != nil {
			spec, err := toD(opts.Projection)
			if err != nil {
				return nil, err
			}
			if len(spec) > 0 {
				docs = project(docs, spec)
			}
		}
	}

	return NewCursor(docs...), nil
}

// UpdateOne applies a $set update to the first matching document.
func (c *Collection) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*docdb.UpdateResult, error) {
	spec, err := toD(update)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range c.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, e := range spec {
			if e.Key != "$set" {
				return nil, fmt.Errorf("unsupported update operator %s", e.Key)
			}
			set, ok := e.Value.(bson.D)
			if !ok {
				return nil, fmt.Errorf("$set requires a document")
			}
			for _, field := range set {
				doc[field.Key] = field.Value
			}
		}
		return &docdb.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return &docdb.UpdateResult{}, nil
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(ctx context.Context, filter interface{}) (*docdb.DeleteResult, error) {
	return c.delete(filter, 1)
}

// DeleteMany removes every matching document.
func (c *Collection) DeleteMany(ctx context.Context, filter interface{}) (*docdb.DeleteResult, error) {
	return c.delete(filter, -1)
}

func (c *Collection) delete(filter interface{}, max int) (*docdb.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.docs[:0]
	var deleted int64
	for _, doc := range c.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok && (max < 0 || deleted < int64(max)) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return &docdb.DeleteResult{DeletedCount: deleted}, nil
}

// CountDocuments counts matching documents.
func (c *Collection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	docs, err := c.match(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// CreateIndex records the index and returns its name.
func (c *Collection) CreateIndex(ctx context.Context, keys []docdb.IndexField) (string, error) {
	return c.createIndex(keys, false)
}

// CreateUniqueIndex records the index and rejects later inserts that
// duplicate the indexed values.
func (c *Collection) CreateUniqueIndex(ctx context.Context, keys []docdb.IndexField) (string, error) {
	return c.createIndex(keys, true)
}

func (c *Collection) createIndex(keys []docdb.IndexField, unique bool) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("index requires at least one key")
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		direction := 1
		if k.Descending {
			direction = -1
		}
		parts = append(parts, fmt.Sprintf("%s_%d", k.Field, direction))
	}
	name := "idx_" + strings.Join(parts, "_")

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.indexes {
		if existing == name {
			return name, nil
		}
	}
	c.indexes = append(c.indexes, name)
	if unique {
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, k.Field)
		}
		c.unique = append(c.unique, fields)
	}
	return name, nil
}

// sameKey reports whether a and b hold equal values for every field.
func sameKey(a, b bson.M, fields []string) bool {
	for _, f := range fields {
		if !equal(a[f], b[f]) {
			return false
		}
	}
	return true
}

func (c *Collection) match(filter interface{}) ([]bson.M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []bson.M
	for _, doc := range c.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			cp, _ := normalize(doc)
			out = append(out, cp)
		}
	}
	return out, nil
}

// Bucket implements docdb.Bucket in memory.
type Bucket struct {
	mu    sync.Mutex
	files map[primitive.ObjectID]file
}

type file struct {
	name string
	data []byte
}

// Upload stores a copy of data.
func (b *Bucket) Upload(ctx context.Context, filename string, data []byte) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := primitive.NewObjectID()
	b.files[id] = file{name: filename, data: append([]byte(nil), data...)}
	return id, nil
}

// Download returns a copy of the file content.
func (b *Bucket) Download(ctx context.Context, fileID interface{}) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := fileID.(primitive.ObjectID)
	if !ok {
		return nil, docdb.ErrFileNotFound
	}
	f, ok := b.files[id]
	if !ok {
		return nil, docdb.ErrFileNotFound
	}
	return append([]byte(nil), f.data...), nil
}

// Delete removes the file.
func (b *Bucket) Delete(ctx context.Context, fileID interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := fileID.(primitive.ObjectID)
	if !ok {
		return docdb.ErrFileNotFound
	}
	if _, ok := b.files[id]; !ok {
		return docdb.ErrFileNotFound
	}
	delete(b.files, id)
	return nil
}

// Len returns the number of stored files.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}

// SingleResult implements docdb.SingleResult over a stored document.
type SingleResult struct {
	doc bson.M
	err error
}

// NewSingleResult creates a result holding doc or err.
func NewSingleResult(doc interface{}, err error) *SingleResult {
	if err != nil {
		return &SingleResult{err: err}
	}
	m, err := normalize(doc)
	return &SingleResult{doc: m, err: err}
}

// Decode decodes the document into v.
func (r *SingleResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	return decode(r.doc, v)
}

// Err returns the stored error.
func (r *SingleResult) Err() error {
	return r.err
}

// Cursor implements docdb.Cursor over a slice of documents.
type Cursor struct {
	docs   []bson.M
	pos    int
	err    error
	closed bool
}

// NewCursor creates a cursor over docs.
func NewCursor(docs ...bson.M) *Cursor {
	return &Cursor{docs: docs, pos: -1}
}

// NewFailingCursor creates a cursor that yields docs and then reports err.
func NewFailingCursor(err error, docs ...bson.M) *Cursor {
	return &Cursor{docs: docs, pos: -1, err: err}
}

// Next advances the cursor.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed || c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

// Decode decodes the current document.
func (c *Cursor) Decode(v interface{}) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return fmt.Errorf("cursor is not positioned on a document")
	}
	return decode(c.docs[c.pos], v)
}

// All decodes the remaining documents into results, a pointer to a slice.
func (c *Cursor) All(ctx context.Context, results interface{}) error {
	rv := reflect.ValueOf(results)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("results must be a pointer to a slice")
	}
	slice := rv.Elem()
	for c.Next(ctx) {
		elem := reflect.New(slice.Type().Elem())
		if err := decode(c.docs[c.pos], elem.Interface()); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	rv.Elem().Set(slice)
	_ = c.Close(ctx)
	return c.err
}

// Err returns the configured error once the documents are exhausted.
func (c *Cursor) Err() error {
	if c.pos >= len(c.docs) {
		return c.err
	}
	return nil
}

// Close closes the cursor.
func (c *Cursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Cursor) Closed() bool {
	return c.closed
}

func normalize(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return m, nil
}

func decode(doc bson.M, v interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

func toD(v interface{}) (bson.D, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case bson.D:
		if d == nil {
			return nil, nil
		}
	case bson.M:
		if d == nil {
			return nil, nil
		}
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal filter: %w", err)
	}
	return d, nil
}

func matches(doc bson.M, filter interface{}) (bool, error) {
	if filter == nil {
		return true, nil
	}
	spec, err := toD(filter)
	if err != nil {
		return false, err
	}

	for _, e := range spec {
		value, present := doc[e.Key]
		ops, isOps := e.Value.(bson.D)
		if !isOps || len(ops) == 0 || !strings.HasPrefix(ops[0].Key, "$") {
			if !present || !equal(value, e.Value) {
				return false, nil
			}
			continue
		}
		for _, op := range ops {
			ok, err := apply(op.Key, value, present, op.Value)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func apply(op string, value interface{}, present bool, arg interface{}) (bool, error) {
	switch op {
	case "$eq":
		return present && equal(value, arg), nil
	case "$ne":
		return !present || !equal(value, arg), nil
	case "$in":
		list, ok := arg.(bson.A)
		if !ok {
			return false, fmt.Errorf("$in requires an array")
		}
		if !present {
			return false, nil
		}
		for _, item := range list {
			if equal(value, item) {
				return true, nil
			}
		}
		return false, nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		cmp, ok := compare(value, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return cmp > 0, nil
		case "$gte":
			return cmp >= 0, nil
		case "$lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported operator %s", op)
}

func equal(a, b interface{}) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalars of compatible kinds.
func compare(a, b interface{}) (int, bool) {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0, true
			}
			if !av {
				return -1, true
			}
			return 1, true
		}
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex()), true
		}
	case primitive.DateTime:
		if bv, ok := b.(primitive.DateTime); ok {
			return compareInt(int64(av), int64(bv)), true
		}
		if bv, ok := b.(time.Time); ok {
			return compareInt(int64(av), int64(primitive.NewDateTimeFromTime(bv))), true
		}
	}
	return 0, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sortDocs(docs []bson.M, spec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, e := range spec {
			direction, _ := number(e.Value)
			a, aok := docs[i][e.Key]
			b, bok := docs[j][e.Key]
			var cmp int
			switch {
			case !aok && !bok:
				cmp = 0
			case !aok:
				cmp = -1
			case !bok:
				cmp = 1
			default:
				cmp, _ = compare(a, b)
			}
			if direction < 0 {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

func project(docs []bson.M, spec bson.D) []bson.M {
	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		p := bson.M{"_id": doc["_id"]}
		for _, e := range spec {
			if include, _ := number(e.Value); include == 0 {
				if e.Key == "_id" {
					delete(p, "_id")
				}
				continue
			}
			if v, ok := doc[e.Key]; ok {
				p[e.Key] = v
			}
		}
		out = append(out, p)
	}
	return out
}
