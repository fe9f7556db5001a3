package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/stoneacre/cobble/pkg/builder"
	"github.com/stoneacre/cobble/pkg/registry"
	"github.com/stoneacre/cobble/pkg/schema"
)

// fetchPlan is one level of a query's hydration tree: the root entity
// or one join-fetched relationship hanging off its parent. Join
// children share the base query's rows; batch directives run as
// secondary queries once the level's entities are known.
type fetchPlan struct {
	table    *schema.TableMetadata
	rel      *schema.RelationshipMetadata
	joins    []*fetchPlan
	batches  []Directive
	colStart int
	pkPos    int
	entities []any
	seen     map[int64]bool
	linkSeen map[linkKey]bool
}

type linkKey struct {
	parentID int64
	childID  int64
}

// hydration is the per-query execution state. Freshness separates
// entities materialized by this query from instances the session
// already held, whose in-memory state must not be clobbered.
type hydration struct {
	session *Session
	fresh   map[any]bool
}

// runQuery executes a base query with its loading directives and
// returns the hydrated root entities in row order. The query-count
// contract: one base query including every join-fetched relationship,
// plus exactly one additional query per batch directive, independent
// of row count.
func (s *Session) runQuery(
	ctx context.Context,
	table *schema.TableMetadata,
	where []builder.Condition,
	orderBy []builder.OrderBy,
	limit *int,
	directives []Directive,
) ([]any, error) {
	counter := 0
	plan, columns, joins, err := buildPlan(table, directives, &counter)
	if err != nil {
		return nil, err
	}

	// With joins in play, bare column references in caller conditions
	// become ambiguous; qualify them against the base table.
	if len(joins) > 0 {
		where = qualifyConditions(table, where)
		orderBy = qualifyOrder(table, orderBy)
	}

	stmt := builder.SelectStatement{
		Table:   table,
		Columns: columns,
		Joins:   joins,
		Where:   where,
		OrderBy: orderBy,
		Limit:   limit,
	}
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return nil, err
	}

	exec := &hydration{session: s, fresh: make(map[any]bool)}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		holders := builder.HolderTargets(counter)
		if err := rows.Scan(holders...); err != nil {
			rows.Close()
			return nil, err
		}
		if _, err := exec.hydrateRow(plan, holders); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := exec.runBatches(ctx, plan); err != nil {
		return nil, err
	}
	return plan.entities, nil
}

// buildPlan assembles the hydration tree for a table and its
// directives, assigning column positions in the combined row. Join
// directives recurse; batch directives are deferred to runBatches.
func buildPlan(table *schema.TableMetadata, directives []Directive, counter *int) (*fetchPlan, []string, []builder.JoinClause, error) {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return nil, nil, nil, fmt.Errorf("table %s has no single-column primary key", table.Name)
	}
	plan := &fetchPlan{
		table:    table,
		colStart: *counter,
		pkPos:    pk.Position,
		seen:     make(map[int64]bool),
		linkSeen: make(map[linkKey]bool),
	}
	columns := builder.QualifiedColumns(table)
	*counter += len(columns)

	var joins []builder.JoinClause
	for _, dir := range directives {
		rel := table.GetRelationship(dir.Field)
		if rel == nil {
			return nil, nil, nil, fmt.Errorf("relationship %s not declared on %s", dir.Field, table.Name)
		}
		switch dir.Strategy {
		case StrategyJoin:
			if rel.Type == schema.ManyToMany {
				return nil, nil, nil, fmt.Errorf("relationship %s.%s: many-to-many requires batch loading", table.Name, dir.Field)
			}
			targetTable, err := targetMetadata(rel)
			if err != nil {
				return nil, nil, nil, err
			}
			child, childCols, childJoins, err := buildPlan(targetTable, dir.Nested, counter)
			if err != nil {
				return nil, nil, nil, err
			}
			child.rel = rel
			plan.joins = append(plan.joins, child)
			joins = append(joins, builder.JoinClause{
				Type:      builder.LeftJoin,
				Table:     targetTable.Name,
				Condition: joinCondition(table, targetTable, rel),
			})
			joins = append(joins, childJoins...)
			columns = append(columns, childCols...)
		case StrategyBatch:
			plan.batches = append(plan.batches, dir)
		default:
			return nil, nil, nil, fmt.Errorf("relationship %s.%s: unknown loading strategy", table.Name, dir.Field)
		}
	}
	return plan, columns, joins, nil
}

// joinCondition renders the ON clause for a join-fetched relationship.
func joinCondition(source, target *schema.TableMetadata, rel *schema.RelationshipMetadata) string {
	if rel.Type == schema.BelongsTo {
		return fmt.Sprintf("%s.%s = %s.%s", target.Name, rel.References, source.Name, rel.ForeignKey)
	}
	return fmt.Sprintf("%s.%s = %s.%s", target.Name, rel.ForeignKey, source.Name, rel.References)
}

// targetMetadata resolves the metadata of a relationship's far side.
func targetMetadata(rel *schema.RelationshipMetadata) (*schema.TableMetadata, error) {
	if table, err := registry.Get(rel.TargetType); err == nil {
		return table, nil
	}
	return registry.GetOrRegister(reflect.New(rel.TargetType).Interface())
}

// hydrateRow materializes one plan level from a scanned row and links
// it into its join children. Returns nil for the empty side of an
// outer join.
func (e *hydration) hydrateRow(plan *fetchPlan, holders []any) (any, error) {
	idVal := builder.HolderValue(holders[plan.colStart+plan.pkPos])
	if idVal == nil {
		return nil, nil
	}
	id := asInt64(idVal)

	entity, ok := e.session.lookup(plan.table, id)
	if !ok {
		value := reflect.New(plan.table.GoType)
		if err := builder.AssignHolders(value, plan.table, holders[plan.colStart:plan.colStart+len(plan.table.Columns)]); err != nil {
			return nil, err
		}
		entity = value.Interface()
		initEmptyCollections(entity, plan.table)
		e.session.track(entity, plan.table)
		e.fresh[entity] = true
	}
	if !plan.seen[id] {
		plan.seen[id] = true
		plan.entities = append(plan.entities, entity)
	}

	for _, child := range plan.joins {
		childEntity, err := e.hydrateRow(child, holders)
		if err != nil {
			return nil, err
		}
		e.link(child, entity, childEntity)
	}
	return entity, nil
}

// link attaches a hydrated child to its parent's relationship field.
// Instances the session already held keep their in-memory state: a
// populated to-one pointer or a non-empty collection on a stale
// parent is never clobbered.
func (e *hydration) link(child *fetchPlan, parent, childEntity any) {
	rel := child.rel
	field := relationshipField(parent, rel)
	if !field.IsValid() {
		return
	}
	if rel.ToOne() {
		if childEntity != nil && field.IsNil() {
			field.Set(reflect.ValueOf(childEntity))
		}
		return
	}
	if childEntity == nil {
		return
	}
	if !e.fresh[parent] && field.Len() > 0 {
		return
	}
	key := linkKey{
		parentID: primaryKeyValue(parent, parentTableOf(child)),
		childID:  primaryKeyValue(childEntity, child.table),
	}
	if child.linkSeen[key] {
		return
	}
	child.linkSeen[key] = true
	field.Set(reflect.Append(field, reflect.ValueOf(childEntity)))
}

// parentTableOf resolves the source side's metadata from a child plan.
func parentTableOf(child *fetchPlan) *schema.TableMetadata {
	table, err := registry.GetByName(child.rel.SourceTable)
	if err != nil {
		return &schema.TableMetadata{Name: child.rel.SourceTable}
	}
	return table
}

// runBatches issues the secondary queries for a plan level and then
// descends into its join children. Zero parent rows means zero
// secondary queries.
func (e *hydration) runBatches(ctx context.Context, plan *fetchPlan) error {
	for _, dir := range plan.batches {
		if len(plan.entities) == 0 {
			continue
		}
		rel := plan.table.GetRelationship(dir.Field)
		var err error
		switch rel.Type {
		case schema.HasOne, schema.HasMany:
			err = e.batchByForeignKey(ctx, plan, rel, dir)
		case schema.BelongsTo:
			err = e.batchBelongsTo(ctx, plan, rel, dir)
		case schema.ManyToMany:
			err = e.batchManyToMany(ctx, plan, rel, dir)
		}
		if err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", dir.Field, err)
		}
	}
	for _, child := range plan.joins {
		if err := e.runBatches(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// batchByForeignKey loads hasOne/hasMany rows for the whole parent
// batch with a single WHERE fk = ANY($1) query, stitching results in
// by the foreign key carried on each child row.
func (e *hydration) batchByForeignKey(ctx context.Context, plan *fetchPlan, rel *schema.RelationshipMetadata, dir Directive) error {
	targetTable, err := targetMetadata(rel)
	if err != nil {
		return err
	}
	fkCol := targetTable.Column(rel.ForeignKey)
	if fkCol == nil {
		return fmt.Errorf("column %s not mapped on %s", rel.ForeignKey, targetTable.Name)
	}

	counter := 0
	subPlan, columns, joins, err := buildPlan(targetTable, dir.Nested, &counter)
	if err != nil {
		return err
	}
	subPlan.rel = rel

	ids := parentIDs(plan)
	fkRef := rel.ForeignKey
	pkRef := targetTable.PrimaryKeyColumn().Name
	if len(joins) > 0 {
		fkRef = builder.Qualify(targetTable, fkRef)
		pkRef = builder.Qualify(targetTable, pkRef)
	}
	stmt := builder.SelectStatement{
		Table:   targetTable,
		Columns: columns,
		Joins:   joins,
		Where:   []builder.Condition{builder.Any(fkRef, ids)},
		OrderBy: []builder.OrderBy{{Column: pkRef, Direction: builder.Asc}},
	}
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return err
	}

	rows, err := e.session.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		holders := builder.HolderTargets(counter)
		if err := rows.Scan(holders...); err != nil {
			rows.Close()
			return err
		}
		child, err := e.hydrateRow(subPlan, holders)
		if err != nil {
			rows.Close()
			return err
		}
		if child == nil {
			continue
		}
		parentID := fieldInt64(child, fkCol.GoField)
		parent, ok := e.session.lookup(plan.table, parentID)
		if !ok {
			continue
		}
		e.link(subPlan, parent, child)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	return e.runBatches(ctx, subPlan)
}

// batchBelongsTo loads the owning side for the whole parent batch
// with a single WHERE pk = ANY($1) query over the distinct foreign
// key values.
func (e *hydration) batchBelongsTo(ctx context.Context, plan *fetchPlan, rel *schema.RelationshipMetadata, dir Directive) error {
	targetTable, err := targetMetadata(rel)
	if err != nil {
		return err
	}
	fkCol := plan.table.Column(rel.ForeignKey)
	if fkCol == nil {
		return fmt.Errorf("column %s not mapped on %s", rel.ForeignKey, plan.table.Name)
	}

	var ids []int64
	seen := make(map[int64]bool)
	for _, parent := range plan.entities {
		id := fieldInt64(parent, fkCol.GoField)
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	counter := 0
	subPlan, columns, joins, err := buildPlan(targetTable, dir.Nested, &counter)
	if err != nil {
		return err
	}
	subPlan.rel = rel

	pkRef := rel.References
	if len(joins) > 0 {
		pkRef = builder.Qualify(targetTable, pkRef)
	}
	stmt := builder.SelectStatement{
		Table:   targetTable,
		Columns: columns,
		Joins:   joins,
		Where:   []builder.Condition{builder.Any(pkRef, ids)},
		OrderBy: []builder.OrderBy{{Column: pkRef, Direction: builder.Asc}},
	}
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return err
	}

	rows, err := e.session.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		holders := builder.HolderTargets(counter)
		if err := rows.Scan(holders...); err != nil {
			rows.Close()
			return err
		}
		if _, err := e.hydrateRow(subPlan, holders); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, parent := range plan.entities {
		id := fieldInt64(parent, fkCol.GoField)
		if id == 0 {
			continue
		}
		if child, ok := e.session.lookup(targetTable, id); ok {
			e.link(subPlan, parent, child)
		}
	}
	return e.runBatches(ctx, subPlan)
}

// batchManyToMany loads the plain many-to-many view for the whole
// parent batch: one query over the join table, inner-joined to the
// target so each link row yields one target entity. Duplicate link
// rows deliberately surface as repeated entries in the collection.
func (e *hydration) batchManyToMany(ctx context.Context, plan *fetchPlan, rel *schema.RelationshipMetadata, dir Directive) error {
	targetTable, err := targetMetadata(rel)
	if err != nil {
		return err
	}
	linkTable := rel.JoinTable

	counter := 1 // leading column carries the link's near-side key
	subPlan, columns, joins, err := buildPlan(targetTable, dir.Nested, &counter)
	if err != nil {
		return err
	}
	subPlan.rel = rel

	columns = append([]string{linkTable + "." + rel.ForeignKey}, columns...)
	joins = append([]builder.JoinClause{{
		Type:      builder.InnerJoin,
		Table:     targetTable.Name,
		Condition: fmt.Sprintf("%s.%s = %s.%s", targetTable.Name, rel.References, linkTable, rel.TargetKey),
	}}, joins...)

	stmt := builder.SelectStatement{
		Table:   &schema.TableMetadata{Name: linkTable},
		Columns: columns,
		Joins:   joins,
		Where:   []builder.Condition{builder.Any(linkTable+"."+rel.ForeignKey, parentIDs(plan))},
		OrderBy: []builder.OrderBy{{Column: linkOrderColumn(linkTable, rel), Direction: builder.Asc}},
	}
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return err
	}

	rows, err := e.session.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		holders := builder.HolderTargets(counter)
		if err := rows.Scan(holders...); err != nil {
			rows.Close()
			return err
		}
		child, err := e.hydrateRow(subPlan, holders)
		if err != nil {
			rows.Close()
			return err
		}
		if child == nil {
			continue
		}
		parentID := asInt64(builder.HolderValue(holders[0]))
		parent, ok := e.session.lookup(plan.table, parentID)
		if !ok {
			continue
		}
		e.appendLink(subPlan, parent, child)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	return e.runBatches(ctx, subPlan)
}

// appendLink appends a many-to-many entry without per-pair
// de-duplication: each link row is an entry of its own.
func (e *hydration) appendLink(child *fetchPlan, parent, childEntity any) {
	field := relationshipField(parent, child.rel)
	if !field.IsValid() {
		return
	}
	if !e.fresh[parent] && field.Len() > 0 {
		return
	}
	field.Set(reflect.Append(field, reflect.ValueOf(childEntity)))
}

// linkOrderColumn orders link rows by their own identity when the
// join table is a mapped entity, falling back to the near-side key.
func linkOrderColumn(linkTable string, rel *schema.RelationshipMetadata) string {
	if table, err := registry.GetByName(linkTable); err == nil {
		if pk := table.PrimaryKeyColumn(); pk != nil {
			return linkTable + "." + pk.Name
		}
	}
	return linkTable + "." + rel.ForeignKey
}

// parentIDs collects the identities of a plan level's entities.
func parentIDs(plan *fetchPlan) []int64 {
	ids := make([]int64, 0, len(plan.entities))
	for _, entity := range plan.entities {
		if id := primaryKeyValue(entity, plan.table); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// relationshipField returns the parent's relationship field.
func relationshipField(parent any, rel *schema.RelationshipMetadata) reflect.Value {
	v := reflect.ValueOf(parent)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.FieldByName(rel.SourceField)
}

// initEmptyCollections sets every to-many relationship field to an
// empty slice, so a parent with no related rows exposes an empty
// collection rather than a nil one.
func initEmptyCollections(entity any, table *schema.TableMetadata) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	for i := range table.Relationships {
		rel := &table.Relationships[i]
		if rel.ToOne() {
			continue
		}
		field := v.FieldByName(rel.SourceField)
		if field.IsValid() && field.Kind() == reflect.Slice && field.IsNil() {
			field.Set(reflect.MakeSlice(field.Type(), 0, 0))
		}
	}
}

// fieldInt64 reads an integer struct field by name.
func fieldInt64(entity any, goField string) int64 {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	field := v.FieldByName(goField)
	if !field.IsValid() {
		return 0
	}
	return asInt64(field.Interface())
}

// asInt64 normalizes the integer types pgx reports for key columns.
func asInt64(v any) int64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	}
	return 0
}

// qualifyConditions prefixes bare columns with the base table name.
func qualifyConditions(table *schema.TableMetadata, conditions []builder.Condition) []builder.Condition {
	qualified := make([]builder.Condition, len(conditions))
	for i, cond := range conditions {
		cond.Column = builder.Qualify(table, cond.Column)
		if len(cond.Group) > 0 {
			cond.Group = qualifyConditions(table, cond.Group)
		}
		qualified[i] = cond
	}
	return qualified
}

// qualifyOrder prefixes bare order columns with the base table name.
func qualifyOrder(table *schema.TableMetadata, orderBy []builder.OrderBy) []builder.OrderBy {
	qualified := make([]builder.OrderBy, len(orderBy))
	for i, order := range orderBy {
		order.Column = builder.Qualify(table, order.Column)
		qualified[i] = order
	}
	return qualified
}
