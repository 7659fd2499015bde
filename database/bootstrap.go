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

package database

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var defaultRegistry = NewModelRegistry()

// SQLModel is a model whose table Bootstrap creates. Instance returns a
// struct pointer mapped by bun; lower Priority values are created first.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
	Instances() []interface{}
}

type modelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

func NewModelRegistry() ModelRegistry {
	return &modelRegistry{
		models: make([]SQLModel, 0),
	}
}

func (r *modelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = append(r.models, model)
}

// Models returns the models sorted by priority; ties keep registration order.
func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

func (r *modelRegistry) Instances() []interface{} {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct pointer and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
	}
}

func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

func (a *ModelAdapter) Priority() int {
	return a.priority
}

// RegisterModel adds a model to the default registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(NewModelAdapter(instance, priority))
}

// RegisteredModelInstances lists the default registry's models by priority.
func RegisteredModelInstances() []interface{} {
	return defaultRegistry.Instances()
}

// TableName resolves the table a bun model maps to.
func TableName(db bun.IDB, model interface{}) (name string, err error) {
	typ := reflect.TypeOf(model)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: %T is not a struct model", ErrConfiguration, model)
	}
	defer func() {
		if r := recover(); r != nil {
			name, err = "", fmt.Errorf("%w: %s: %v", ErrConfiguration, typ, r)
		}
	}()
	return db.Dialect().Tables().Get(typ).Name, nil
}

// TableExists reports whether the model's table is present in the current
// schema.
func TableExists(ctx context.Context, db bun.IDB, model interface{}) (bool, error) {
	table, err := TableName(db, model)
	if err != nil {
		return false, err
	}
	var q string
	switch db.Dialect().Name() {
	case dialect.PG:
		q = "SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	case dialect.MySQL:
		q = "SELECT count(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		q = "SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	var n int
	if err := db.NewRaw(q, table).Scan(ctx, &n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// Bootstrap creates the tables of models that do not exist yet. Without
// models it uses the default registry. Existing tables are never altered.
func Bootstrap(ctx context.Context, db bun.IDB, models ...interface{}) error {
	if len(models) == 0 {
		models = RegisteredModelInstances()
	}
	for _, model := range models {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}
