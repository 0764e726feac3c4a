package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
)

// ErrorDump is the log-side view of an error: the full chain plus whatever
// the database or payment provider attached to it. None of it reaches
// clients.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Retryable  bool
	Chain      []string

	DB       *DBDetail
	Provider *ProviderDetail
}

// DBDetail holds Postgres diagnostics from either driver.
type DBDetail struct {
	Code       string
	Constraint string
	Table      string
	Detail     string
}

// ProviderDetail holds the parts of a Stripe API error worth logging.
type ProviderDetail struct {
	HTTPStatus  int
	Type        string
	Code        string
	Param       string
	DeclineCode string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{
		TopMessage: err.Error(),
		Retryable:  Retryable(err),
		DB:         dbDetail(err),
		Provider:   providerDetail(err),
	}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

func dbDetail(err error) *DBDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DBDetail{Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName, Detail: pgxErr.Detail}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DBDetail{Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table, Detail: pqErr.Detail}
	}
	return nil
}

func providerDetail(err error) *ProviderDetail {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil
	}
	return &ProviderDetail{
		HTTPStatus:  stripeErr.HTTPStatusCode,
		Type:        string(stripeErr.Type),
		Code:        string(stripeErr.Code),
		Param:       stripeErr.Param,
		DeclineCode: string(stripeErr.DeclineCode),
	}
}

// Fields renders the dump as structured log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  string(d.Code),
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	if db := d.DB; db != nil {
		fields["pg_code"] = db.Code
		fields["pg_constraint"] = db.Constraint
		fields["pg_table"] = db.Table
		fields["pg_detail"] = db.Detail
	}
	if p := d.Provider; p != nil {
		fields["stripe_status"] = p.HTTPStatus
		fields["stripe_type"] = p.Type
		if p.Code != "" {
			fields["stripe_code"] = p.Code
		}
		if p.Param != "" {
			fields["stripe_param"] = p.Param
		}
		if p.DeclineCode != "" {
			fields["stripe_decline_code"] = p.DeclineCode
		}
	}
	return fields
}
