package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const sqliteConstraintPrefix = "constraint failed: "

// ErrorDump is the log-only view of an error chain. It never reaches clients.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Details    any    `json:"details,omitempty"`

	Chain []string `json:"chain,omitempty"`

	DB DBErrorDetail `json:"db"`
}

// DBErrorDetail is what the store reported, whichever driver raised it.
type DBErrorDetail struct {
	Driver     string `json:"driver,omitempty"`
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LogFields flattens the dump for structured request logs.
func (d ErrorDump) LogFields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.Details != nil {
		fields["error_details"] = d.Details
	}
	if d.DB.Driver != "" {
		fields["db_driver"] = d.DB.Driver
		fields["db_code"] = d.DB.Code
		fields["db_constraint"] = d.DB.Constraint
		fields["db_table"] = d.DB.Table
		fields["db_detail"] = d.DB.Detail
	}
	return fields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Details = te.Details()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.DB = dbDetail(err)
	return d
}

func dbDetail(err error) DBErrorDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return DBErrorDetail{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return DBErrorDetail{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	// sqlite only reports "<KIND> constraint failed: table.column"
	var msg string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), sqliteConstraintPrefix) {
			msg = e.Error()
		}
	}
	if msg == "" {
		return DBErrorDetail{}
	}
	idx := strings.Index(msg, sqliteConstraintPrefix)
	kind := strings.TrimSpace(msg[:idx])
	if space := strings.LastIndex(kind, " "); space >= 0 {
		kind = kind[space+1:]
	}
	target := strings.TrimSpace(msg[idx+len(sqliteConstraintPrefix):])
	if comma := strings.Index(target, ","); comma >= 0 {
		target = target[:comma]
	}
	detail := DBErrorDetail{Driver: "sqlite", Code: kind, Message: msg}
	if table, column, ok := strings.Cut(target, "."); ok {
		detail.Table = table
		detail.Column = column
	}
	return detail
}
