// Package session implements the unit of work: a scoped, transactional
// context that tracks loaded entities in an identity map, batches
// writes, and commits or rolls back atomically. A session is bound to
// one logical flow; concurrent callers must each open their own.
package session

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/stoneacre/cobble/pkg/builder"
	"github.com/stoneacre/cobble/pkg/registry"
	"github.com/stoneacre/cobble/pkg/runtime"
	"github.com/stoneacre/cobble/pkg/schema"
)

// Session is a unit of work. Entities loaded through it are tracked
// in a per-session identity map, so two queries resolving the same
// row yield the same instance. Writes accumulate until Commit flushes
// them inside a single transaction.
type Session struct {
	db        *runtime.DB
	identity  map[string]map[int64]any
	managed   []managedEntity
	snapshots map[any][]any
	pending   []any
	closed    bool
}

type managedEntity struct {
	entity any
	table  *schema.TableMetadata
}

// Open creates a new session with an empty identity map and an empty
// pending-write set. Pair it with a deferred Close so the scope is
// rolled back on every exit path that did not commit.
func Open(db *runtime.DB) *Session {
	return &Session{
		db:        db,
		identity:  make(map[string]map[int64]any),
		snapshots: make(map[any][]any),
	}
}

// DB returns the underlying database handle.
func (s *Session) DB() *runtime.DB {
	return s.db
}

// Add registers transient (identity-less) entities for insertion on
// the next Commit. Entities must be pointers to registered models.
func (s *Session) Add(entities ...any) {
	s.pending = append(s.pending, entities...)
}

// Commit flushes all pending inserts, dirty updates and staged
// association rows in one transaction. On success new entities carry
// their assigned identities and the pending set is cleared. On
// failure the transaction is rolled back, assigned identities are
// withdrawn, and the pending set stays intact: nothing was persisted
// this round.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return runtime.ErrSessionClosed
	}
	if len(s.pending) == 0 && !s.hasDirty() {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := s.flush(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		s.withdrawIdentities()
		return runtime.MapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		s.withdrawIdentities()
		return runtime.MapError(err)
	}

	// Promote flushed entities into the identity map and refresh all
	// snapshots so the next flush starts clean.
	for _, entity := range s.pending {
		table, err := registry.GetOrRegister(entity)
		if err != nil {
			continue
		}
		s.track(entity, table)
	}
	s.pending = nil
	for _, m := range s.managed {
		s.snapshots[m.entity] = builder.ColumnValues(m.entity, m.table)
	}
	return nil
}

// Rollback discards pending inserts and restores managed entities to
// their last flushed column values. Relationship collections staged
// in memory are not rewound; reopen a session for a pristine graph.
func (s *Session) Rollback() {
	s.withdrawIdentities()
	s.pending = nil
	for _, m := range s.managed {
		snapshot, ok := s.snapshots[m.entity]
		if !ok {
			continue
		}
		restoreSnapshot(m.entity, m.table, snapshot)
	}
}

// Close ends the session. Uncommitted work is rolled back, so a
// deferred Close guarantees commit-or-rollback on every exit path.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.Rollback()
	s.closed = true
}

// flush writes pending inserts and dirty updates through the
// transaction, in registration order then load order.
func (s *Session) flush(ctx context.Context, tx pgx.Tx) error {
	for _, entity := range s.pending {
		table, err := registry.GetOrRegister(entity)
		if err != nil {
			return err
		}
		if err := s.resolveForeignKeys(entity, table); err != nil {
			return err
		}
		sql, args, err := builder.BuildInsert(table, entity)
		if err != nil {
			return err
		}
		pk := table.PrimaryKeyColumn()
		if pk != nil && pk.AutoIncrement {
			var id int64
			if err := tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
				return err
			}
			if err := setPrimaryKey(entity, table, id); err != nil {
				return err
			}
		} else {
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return err
			}
		}
	}

	for _, m := range s.managed {
		columns, values := s.dirtyColumns(m)
		if len(columns) == 0 {
			continue
		}
		sql, args, err := builder.BuildUpdate(m.table, columns, values, primaryKeyValue(m.entity, m.table))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}
	}
	return nil
}

// dirtyColumns diffs a managed entity against its load-time snapshot,
// returning the changed non-key columns in declaration order.
func (s *Session) dirtyColumns(m managedEntity) ([]string, []any) {
	snapshot, ok := s.snapshots[m.entity]
	if !ok {
		return nil, nil
	}
	current := builder.ColumnValues(m.entity, m.table)
	var columns []string
	var values []any
	for i, col := range m.table.Columns {
		if m.table.IsPrimaryKey(col.Name) {
			continue
		}
		if i < len(snapshot) && reflect.DeepEqual(snapshot[i], current[i]) {
			continue
		}
		columns = append(columns, col.Name)
		values = append(values, current[i])
	}
	return columns, values
}

// hasDirty reports whether any managed entity diverged from its
// snapshot.
func (s *Session) hasDirty() bool {
	for _, m := range s.managed {
		if cols, _ := s.dirtyColumns(m); len(cols) > 0 {
			return true
		}
	}
	return false
}

// resolveForeignKeys copies identities from populated to-one
// relationship pointers into zero foreign key columns, so entities
// added in the same flush round can reference each other before ids
// are assigned.
func (s *Session) resolveForeignKeys(entity any, table *schema.TableMetadata) error {
	entityValue := reflect.ValueOf(entity)
	for entityValue.Kind() == reflect.Pointer {
		entityValue = entityValue.Elem()
	}
	for i := range table.Relationships {
		rel := &table.Relationships[i]
		if rel.Type != schema.BelongsTo {
			continue
		}
		relField := entityValue.FieldByName(rel.SourceField)
		if !relField.IsValid() || relField.Kind() != reflect.Pointer || relField.IsNil() {
			continue
		}
		fkCol := table.Column(rel.ForeignKey)
		if fkCol == nil {
			continue
		}
		fkField := entityValue.FieldByName(fkCol.GoField)
		if !fkField.IsValid() || !fkField.IsZero() {
			continue
		}
		targetTable, err := registry.Get(rel.TargetType)
		if err != nil {
			return err
		}
		fkField.SetInt(primaryKeyValue(relField.Interface(), targetTable))
	}
	return nil
}

// withdrawIdentities zeroes primary keys assigned during a failed
// flush, leaving pending entities transient again.
func (s *Session) withdrawIdentities() {
	for _, entity := range s.pending {
		table, err := registry.GetOrRegister(entity)
		if err != nil {
			continue
		}
		_ = setPrimaryKey(entity, table, 0)
	}
}

// lookup returns the tracked instance for a row, if any.
func (s *Session) lookup(table *schema.TableMetadata, id int64) (any, bool) {
	byID, ok := s.identity[table.Name]
	if !ok {
		return nil, false
	}
	entity, ok := byID[id]
	return entity, ok
}

// track registers an entity in the identity map and snapshots its
// column values for dirty tracking. Re-tracking is a no-op so the
// first materialization of a row stays canonical.
func (s *Session) track(entity any, table *schema.TableMetadata) {
	id := primaryKeyValue(entity, table)
	if id == 0 {
		return
	}
	byID, ok := s.identity[table.Name]
	if !ok {
		byID = make(map[int64]any)
		s.identity[table.Name] = byID
	}
	if _, exists := byID[id]; exists {
		return
	}
	byID[id] = entity
	s.managed = append(s.managed, managedEntity{entity: entity, table: table})
	s.snapshots[entity] = builder.ColumnValues(entity, table)
}

// primaryKeyValue reads the entity's integer identity.
func primaryKeyValue(entity any, table *schema.TableMetadata) int64 {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return 0
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	field := v.FieldByName(pk.GoField)
	if !field.IsValid() {
		return 0
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(field.Uint())
	}
	return 0
}

// setPrimaryKey writes the entity's integer identity.
func setPrimaryKey(entity any, table *schema.TableMetadata, id int64) error {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return runtime.ErrNoPrimaryKey
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	field := v.FieldByName(pk.GoField)
	if !field.IsValid() || !field.CanSet() {
		return runtime.ErrInvalidModel
	}
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		field.SetInt(id)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		field.SetUint(uint64(id))
	default:
		return runtime.ErrInvalidModel
	}
	return nil
}

// restoreSnapshot copies snapshot values back onto the entity's
// mapped columns.
func restoreSnapshot(entity any, table *schema.TableMetadata, snapshot []any) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	for i, col := range table.Columns {
		if i >= len(snapshot) || snapshot[i] == nil {
			continue
		}
		field := v.FieldByName(col.GoField)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		val := reflect.ValueOf(snapshot[i])
		if val.Type().AssignableTo(field.Type()) {
			field.Set(val)
		}
	}
}
