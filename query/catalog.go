/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun/schema"
)

// Resolver maps a caller-facing field name to a column expression.
type Resolver interface {
	ResolveColumn(field string) (string, error)
}

// FieldCatalog is the field-addressable view of a model type. It is built
// once from the dialect's table metadata and is safe for concurrent reads.
type FieldCatalog struct {
	typ    reflect.Type
	table  *schema.Table
	fields map[string]*schema.Field
	fmter  schema.Formatter
}

// CatalogOf builds the catalog of T.
func CatalogOf[T any](dialect schema.Dialect) (*FieldCatalog, error) {
	return NewFieldCatalog(dialect, reflect.TypeOf((*T)(nil)).Elem())
}

// EntityCatalogOf builds the catalog of T and requires a primary key.
func EntityCatalogOf[T any](dialect schema.Dialect) (*FieldCatalog, error) {
	c, err := CatalogOf[T](dialect)
	if err != nil {
		return nil, err
	}
	if len(c.table.PKs) == 0 {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrInvalidModel, c.typ)
	}
	return c, nil
}

// NewFieldCatalog builds the catalog of a struct type (or pointer to one).
func NewFieldCatalog(dialect schema.Dialect, typ reflect.Type) (c *FieldCatalog, err error) {
	if dialect == nil {
		return nil, fmt.Errorf("%w: nil dialect", ErrInvalidModel)
	}
	if typ == nil {
		return nil, fmt.Errorf("%w: nil type", ErrInvalidModel)
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidModel, typ)
	}

	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, typ, r)
		}
	}()
	table := dialect.Tables().Get(typ)

	c = &FieldCatalog{
		typ:    typ,
		table:  table,
		fields: make(map[string]*schema.Field, len(table.Fields)*3),
		fmter:  schema.NewFormatter(dialect),
	}
	for _, f := range table.Fields {
		c.fields[f.Name] = f
	}
	for _, f := range table.Fields {
		if _, ok := c.fields[f.GoName]; !ok {
			c.fields[f.GoName] = f
		}
		lower := strings.ToLower(f.GoName)
		if _, ok := c.fields[lower]; !ok {
			c.fields[lower] = f
		}
	}
	return c, nil
}

func (c *FieldCatalog) Type() reflect.Type { return c.typ }

func (c *FieldCatalog) Table() *schema.Table { return c.table }

// Name is the unquoted table name.
func (c *FieldCatalog) Name() string { return c.table.Name }

// SQLName is the quoted table name, ready to be used as a query argument.
func (c *FieldCatalog) SQLName() schema.Safe { return c.table.SQLName }

func (c *FieldCatalog) PrimaryKeys() []*schema.Field { return c.table.PKs }

// Columns lists column names in declaration order, primary keys first.
func (c *FieldCatalog) Columns() []string {
	cols := make([]string, 0, len(c.table.Fields))
	for _, f := range c.table.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// Field looks a field up by column name, Go name, or Go name ignoring case.
// A prefix equal to the table name or alias is accepted and ignored.
func (c *FieldCatalog) Field(name string) (*schema.Field, error) {
	if prefix, rest, ok := strings.Cut(name, "."); ok {
		if prefix != c.table.Name && prefix != c.table.Alias {
			return nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, name, c.table.Name)
		}
		name = rest
	}
	if f, ok := c.fields[name]; ok {
		return f, nil
	}
	if f, ok := c.fields[strings.ToLower(name)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, name, c.table.Name)
}

func (c *FieldCatalog) ResolveColumn(name string) (string, error) {
	f, err := c.Field(name)
	if err != nil {
		return "", err
	}
	return f.Name, nil
}

// PrimaryKeyValues reads the primary key values of entity, which must be a
// pointer to the catalog's type.
func (c *FieldCatalog) PrimaryKeyValues(entity interface{}) ([]interface{}, error) {
	v, err := c.structValue(entity)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(c.table.PKs))
	for i, pk := range c.table.PKs {
		values[i] = pk.Value(v).Interface()
	}
	return values, nil
}

// HasZeroPrimaryKey reports whether any primary key field holds its zero
// value.
func (c *FieldCatalog) HasZeroPrimaryKey(entity interface{}) (bool, error) {
	v, err := c.structValue(entity)
	if err != nil {
		return false, err
	}
	for _, pk := range c.table.PKs {
		if pk.HasZeroValue(v) {
			return true, nil
		}
	}
	return false, nil
}

// Snapshot captures the data field values of entity keyed by column. Values
// are kept as the SQL literals the dialect would write, so two snapshots
// compare equal exactly when an UPDATE would not change the row.
func (c *FieldCatalog) Snapshot(entity interface{}) (map[string]string, error) {
	v, err := c.structValue(entity)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]string, len(c.table.DataFields))
	for _, f := range c.table.DataFields {
		snap[f.Name] = string(f.AppendValue(c.fmter, nil, v))
	}
	return snap, nil
}

// Changed returns the data columns whose values differ from before.
func (c *FieldCatalog) Changed(before map[string]string, entity interface{}) ([]string, error) {
	after, err := c.Snapshot(entity)
	if err != nil {
		return nil, err
	}
	changed := make([]string, 0)
	for _, f := range c.table.DataFields {
		if before[f.Name] != after[f.Name] {
			changed = append(changed, f.Name)
		}
	}
	return changed, nil
}

func (c *FieldCatalog) structValue(entity interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: expected non-nil *%s, got %T", ErrInvalidModel, c.typ, entity)
	}
	v = v.Elem()
	if v.Type() != c.typ {
		return reflect.Value{}, fmt.Errorf("%w: expected *%s, got %T", ErrInvalidModel, c.typ, entity)
	}
	return v, nil
}

// JoinScope resolves "alias.field" names across the catalogs of a join.
// Unqualified names are accepted when exactly one catalog knows them.
type JoinScope struct {
	aliases  []string
	catalogs map[string]*FieldCatalog
}

func NewJoinScope() *JoinScope {
	return &JoinScope{catalogs: make(map[string]*FieldCatalog)}
}

// Add registers a catalog under alias.
func (s *JoinScope) Add(alias string, c *FieldCatalog) error {
	if alias == "" || strings.Contains(alias, ".") {
		return fmt.Errorf("%w: invalid alias %q", ErrInvalidModel, alias)
	}
	if _, dup := s.catalogs[alias]; dup {
		return fmt.Errorf("%w: duplicate alias %q", ErrInvalidModel, alias)
	}
	s.aliases = append(s.aliases, alias)
	s.catalogs[alias] = c
	return nil
}

func (s *JoinScope) Catalog(alias string) (*FieldCatalog, bool) {
	c, ok := s.catalogs[alias]
	return c, ok
}

func (s *JoinScope) ResolveColumn(name string) (string, error) {
	if alias, field, ok := strings.Cut(name, "."); ok {
		c, known := s.catalogs[alias]
		if !known {
			return "", fmt.Errorf("%w: unknown alias in %q", ErrUnknownField, name)
		}
		col, err := c.ResolveColumn(field)
		if err != nil {
			return "", err
		}
		return alias + "." + col, nil
	}

	var found string
	for _, alias := range s.aliases {
		col, err := s.catalogs[alias].ResolveColumn(name)
		if err != nil {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: %q is ambiguous", ErrUnknownField, name)
		}
		found = alias + "." + col
	}
	if found == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return found, nil
}
