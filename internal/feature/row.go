// Package feature implements the normalization and derivation pipeline
// that turns raw KYC/transaction records into the fixed feature schema
// consumed by the classifier.
package feature

import "errors"

// Raw input column names.
const (
	ColOccupation      = "occupation"
	ColPurpose         = "purposeOfTransaction"
	ColSourceOfFunds   = "sourceOfFunds"
	ColCountryOfBirth  = "countryOfBirth"
	ColNationality     = "nationality"
	ColReceiverCountry = "receiver.address.countryCode"
	ColDateOfBirth     = "dateOfBirth"
	ColIDStatus        = "idVerificationStatus"

	// Derived column names.
	ColAge         = "age"
	ColIDVerified  = "id_verified"
	ColCrossBorder = "cross_border"
)

// Columns is the exact ordered column set the classifier is fitted
// against. Training and prediction must both produce this schema.
var Columns = []string{
	ColOccupation,
	ColPurpose,
	ColSourceOfFunds,
	ColCountryOfBirth,
	ColNationality,
	ColReceiverCountry,
	ColAge,
	ColIDVerified,
	ColCrossBorder,
}

// CategoricalColumns are the columns that go through one-hot encoding.
var CategoricalColumns = Columns[:6]

// NumericColumns pass through the encoder unchanged.
var NumericColumns = Columns[6:]

// Pipeline error taxonomy. All are deterministic validation failures:
// the shells translate them into user-facing errors, nothing retries.
var (
	// ErrInputFormat indicates raw input that is not a mapping or a
	// sequence of mappings.
	ErrInputFormat = errors.New("input is not a record or list of records")

	// ErrDerivation indicates a derived field that cannot be computed,
	// e.g. a date of birth without a numeric year prefix.
	ErrDerivation = errors.New("feature derivation failed")

	// ErrMissingField indicates a raw field required for derivation is
	// absent from the record.
	ErrMissingField = errors.New("required field missing")

	// ErrSchema indicates the record cannot satisfy the fixed column
	// schema.
	ErrSchema = errors.New("record does not match feature schema")
)

// Row is one record in the feature schema, in column order.
type Row struct {
	Occupation      string `json:"occupation"`
	Purpose         string `json:"purposeOfTransaction"`
	SourceOfFunds   string `json:"sourceOfFunds"`
	CountryOfBirth  string `json:"countryOfBirth"`
	Nationality     string `json:"nationality"`
	ReceiverCountry string `json:"receiver.address.countryCode"`
	Age             int    `json:"age"`
	IDVerified      int    `json:"id_verified"`
	CrossBorder     int    `json:"cross_border"`
}

// Categoricals returns the categorical values in schema order.
func (r Row) Categoricals() []string {
	return []string{
		r.Occupation,
		r.Purpose,
		r.SourceOfFunds,
		r.CountryOfBirth,
		r.Nationality,
		r.ReceiverCountry,
	}
}

// Numerics returns the numeric values in schema order.
func (r Row) Numerics() []float64 {
	return []float64{
		float64(r.Age),
		float64(r.IDVerified),
		float64(r.CrossBorder),
	}
}
