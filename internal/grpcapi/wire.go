package grpcapi

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

// Messages are structpb.Struct values. Amounts, heights and ids travel as
// decimal strings so that uint64 values survive the float64 number type.

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// Uint reads a decimal string field. A missing field is zero.
func Uint(s *structpb.Struct, key string) (uint64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, nil
	}
	raw := v.GetStringValue()
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %q is not a decimal uint64", key, raw)
	}
	return n, nil
}

// String reads a string field.
func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// LoanIDRequest builds a GetLoan request.
func LoanIDRequest(id uint64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id": structpb.NewStringValue(u64(id)),
	}}
}

// UserRequest builds a GetUserScore or GetUserLoans request.
func UserRequest(user string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user": structpb.NewStringValue(user),
	}}
}

func EncodeLoan(l lending.Loan) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":            structpb.NewStringValue(u64(l.ID)),
		"borrower":      structpb.NewStringValue(l.Borrower),
		"amount":        structpb.NewStringValue(u64(l.Amount)),
		"collateral":    structpb.NewStringValue(u64(l.Collateral)),
		"interest_rate": structpb.NewStringValue(u64(l.InterestRate)),
		"issued_at":     structpb.NewStringValue(u64(l.IssuedAt)),
		"due_at":        structpb.NewStringValue(u64(l.DueAt)),
		"status":        structpb.NewStringValue(string(l.Status)),
		"repaid_amount": structpb.NewStringValue(u64(l.RepaidAmount)),
	}}
}

func DecodeLoan(s *structpb.Struct) (lending.Loan, error) {
	l := lending.Loan{
		Borrower: String(s, "borrower"),
		Status:   lending.Status(String(s, "status")),
	}
	if !l.Status.Valid() {
		return lending.Loan{}, fmt.Errorf("unknown loan status %q", l.Status)
	}
	for key, dst := range map[string]*uint64{
		"id":            &l.ID,
		"amount":        &l.Amount,
		"collateral":    &l.Collateral,
		"interest_rate": &l.InterestRate,
		"issued_at":     &l.IssuedAt,
		"due_at":        &l.DueAt,
		"repaid_amount": &l.RepaidAmount,
	} {
		v, err := Uint(s, key)
		if err != nil {
			return lending.Loan{}, err
		}
		*dst = v
	}
	return l, nil
}

func EncodeRecord(user string, r reputation.Record) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user":           structpb.NewStringValue(user),
		"score":          structpb.NewStringValue(u64(r.Score)),
		"total_borrowed": structpb.NewStringValue(u64(r.TotalBorrowed)),
		"total_repaid":   structpb.NewStringValue(u64(r.TotalRepaid)),
		"loans_taken":    structpb.NewStringValue(u64(r.LoansTaken)),
		"loans_repaid":   structpb.NewStringValue(u64(r.LoansRepaid)),
		"last_update":    structpb.NewStringValue(u64(r.LastUpdate)),
	}}
}

func DecodeRecord(s *structpb.Struct) (reputation.Record, error) {
	var r reputation.Record
	for key, dst := range map[string]*uint64{
		"score":          &r.Score,
		"total_borrowed": &r.TotalBorrowed,
		"total_repaid":   &r.TotalRepaid,
		"loans_taken":    &r.LoansTaken,
		"loans_repaid":   &r.LoansRepaid,
		"last_update":    &r.LastUpdate,
	} {
		v, err := Uint(s, key)
		if err != nil {
			return reputation.Record{}, err
		}
		*dst = v
	}
	return r, nil
}

func EncodeEntry(user string, e portfolio.Entry) *structpb.Struct {
	ids := make([]*structpb.Value, len(e.LoanIDs))
	for i, id := range e.LoanIDs {
		ids[i] = structpb.NewStringValue(u64(id))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user":     structpb.NewStringValue(user),
		"loan_ids": structpb.NewListValue(&structpb.ListValue{Values: ids}),
	}}
}

func DecodeEntry(s *structpb.Struct) (portfolio.Entry, error) {
	values := s.GetFields()["loan_ids"].GetListValue().GetValues()
	if len(values) == 0 {
		return portfolio.Entry{}, nil
	}
	ids := make([]uint64, len(values))
	for i, v := range values {
		id, err := strconv.ParseUint(v.GetStringValue(), 10, 64)
		if err != nil {
			return portfolio.Entry{}, fmt.Errorf("loan_ids[%d]: %w", i, err)
		}
		ids[i] = id
	}
	return portfolio.Entry{LoanIDs: ids}, nil
}

func EncodeTreasury(collateral uint64, custodyAccount string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"collateral":      structpb.NewStringValue(u64(collateral)),
		"custody_account": structpb.NewStringValue(custodyAccount),
	}}
}
