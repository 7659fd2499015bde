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
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/omeid/pgerror"
)

var (
	// ErrConfiguration reports missing or unusable connection parameters, or a
	// model the storage engine cannot map.
	ErrConfiguration = errors.New("database: invalid configuration")
	// ErrNotInTransaction is returned by Commit and Rollback on a session that
	// does not hold a transaction.
	ErrNotInTransaction = errors.New("database: session holds no transaction")
	ErrSessionClosed    = errors.New("database: session closed")
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	ConnectionErr
	QueryCanceledErr
	SerializationFailureErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no_rows",
	NoIndexErr:                  "no_index",
	NoColumnErr:                 "no_column",
	ExistIndexErr:               "index_exists",
	ExistColumnErr:              "column_exists",
	NoTableErr:                  "no_table",
	ExistTableErr:               "table_exists",
	DuplicateKeyErr:             "duplicate_key",
	NotNullViolationErr:         "not_null_violation",
	ForeignKeyViolationErr:      "foreign_key_violation",
	CheckConstraintViolationErr: "check_violation",
	DataTruncatedErr:            "data_truncated",
	InvalidTypeCastErr:          "invalid_type_cast",
	ConnectionErr:               "connection",
	QueryCanceledErr:            "query_canceled",
	SerializationFailureErr:     "serialization_failure",
}

func (e SQLError) String() string {
	if name, ok := sqlErrorNames[e]; ok {
		return name
	}
	return sqlErrorNames[UnknownErr]
}

// Classify is IsSqlError without the recognition flag.
func Classify(err error) SQLError {
	_, kind := IsSqlError(err)
	return kind
}

// IsSqlError recognizes driver errors from MySQL, lib/pq, pgx and SQLite and
// maps them onto SQLError.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		case 1213:
			return true, SerializationFailureErr
		case 1317, 3024:
			return true, QueryCanceledErr
		default:
			return true, UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, classifyPq(pqErr)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, classifyPgCode(pgErr.Code)
	}
	return classifyMessage(err)
}

func classifyPq(err *pq.Error) SQLError {
	switch {
	case pgerror.UniqueViolation(err) != nil:
		return DuplicateKeyErr
	case pgerror.NotNullViolation(err) != nil:
		return NotNullViolationErr
	case pgerror.ForeignKeyViolation(err) != nil:
		return ForeignKeyViolationErr
	case pgerror.CheckViolation(err) != nil:
		return CheckConstraintViolationErr
	case pgerror.UndefinedTable(err) != nil:
		return NoTableErr
	case pgerror.UndefinedColumn(err) != nil:
		return NoColumnErr
	case pgerror.DuplicateTable(err) != nil:
		return ExistTableErr
	case pgerror.DuplicateColumn(err) != nil:
		return ExistColumnErr
	case pgerror.StringDataRightTruncation(err) != nil:
		return DataTruncatedErr
	case pgerror.DatatypeMismatch(err) != nil, pgerror.InvalidTextRepresentation(err) != nil:
		return InvalidTypeCastErr
	case pgerror.ConnectionException(err) != nil, pgerror.ConnectionFailure(err) != nil:
		return ConnectionErr
	case pgerror.QueryCanceled(err) != nil:
		return QueryCanceledErr
	case pgerror.SerializationFailure(err) != nil:
		return SerializationFailureErr
	}
	return classifyPgCode(string(err.Code))
}

func classifyPgCode(code string) SQLError {
	switch code {
	case "23505":
		return DuplicateKeyErr
	case "23502":
		return NotNullViolationErr
	case "23503":
		return ForeignKeyViolationErr
	case "23514":
		return CheckConstraintViolationErr
	case "42P01":
		return NoTableErr
	case "42703":
		return NoColumnErr
	case "42704":
		return NoIndexErr
	case "42P07":
		return ExistTableErr
	case "42701":
		return ExistColumnErr
	case "22001":
		return DataTruncatedErr
	case "42804", "22P02":
		return InvalidTypeCastErr
	case "57014":
		return QueryCanceledErr
	case "40001", "40P01":
		return SerializationFailureErr
	}
	if strings.HasPrefix(code, "08") {
		return ConnectionErr
	}
	return UnknownErr
}

// classifyMessage covers drivers without typed errors, SQLite in particular.
func classifyMessage(err error) (bool, SQLError) {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "sqlstate 42703"),
		strings.Contains(s, "undefined column"),
		strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "sqlstate 42704"),
		strings.Contains(s, "no such index"),
		strings.Contains(s, "does not exist") && strings.Contains(s, "index"):
		return true, NoIndexErr
	case strings.Contains(s, "sqlstate 42p01"),
		strings.Contains(s, "undefined table"),
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") && (strings.Contains(s, "table") || strings.Contains(s, "relation")):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate key value"),
		strings.Contains(s, "unique constraint failed"),
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint"),
		strings.Contains(s, "sqlstate 23502"),
		strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key violation"),
		strings.Contains(s, "foreign key constraint failed"),
		strings.Contains(s, "sqlstate 23503"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint"),
		strings.Contains(s, "sqlstate 23514"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "string data right truncation"),
		strings.Contains(s, "sqlstate 22001"),
		strings.Contains(s, "data truncated"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch"),
		strings.Contains(s, "sqlstate 42804"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}
