package feature

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Pipeline is the single normalize+derive transform shared by training
// and every serving shell. The output column set and order are
// deterministic: the classifier is fitted against one schema and any
// drift would poison predictions silently.
type Pipeline struct {
	// Now supplies the clock used for age derivation. Injectable for
	// tests; defaults to time.Now.
	Now func() time.Time
}

// NewPipeline creates a pipeline with the wall clock.
func NewPipeline() *Pipeline {
	return &Pipeline{Now: time.Now}
}

// Transform flattens raw input and derives the feature schema for each
// record. Callers may supply age, id_verified and cross_border directly
// (the prediction path) or the raw dateOfBirth / idVerificationStatus /
// country fields they derive from (the training path).
func (p *Pipeline) Transform(input any) ([]Row, error) {
	records, err := Flatten(input)
	if err != nil {
		return nil, err
	}
	return p.TransformRecords(records)
}

// TransformRecords derives feature rows from already-flat records.
func (p *Pipeline) TransformRecords(records []map[string]any) ([]Row, error) {
	year := p.Now().UTC().Year()

	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		row, err := deriveRow(rec, year)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// deriveRow computes the three derived columns and selects the fixed
// schema. Columns outside the schema are dropped.
func deriveRow(rec map[string]any, year int) (Row, error) {
	var row Row
	var err error

	if row.Age, err = deriveAge(rec, year); err != nil {
		return Row{}, err
	}
	if row.IDVerified, err = deriveIDVerified(rec); err != nil {
		return Row{}, err
	}
	if row.CrossBorder, err = deriveCrossBorder(rec); err != nil {
		return Row{}, err
	}

	for _, col := range CategoricalColumns {
		val, err := stringField(rec, col)
		if err != nil {
			return Row{}, err
		}
		switch col {
		case ColOccupation:
			row.Occupation = val
		case ColPurpose:
			row.Purpose = val
		case ColSourceOfFunds:
			row.SourceOfFunds = val
		case ColCountryOfBirth:
			row.CountryOfBirth = val
		case ColNationality:
			row.Nationality = val
		case ColReceiverCountry:
			row.ReceiverCountry = val
		}
	}

	return row, nil
}

// deriveAge prefers a directly supplied age and falls back to the year
// prefix of dateOfBirth.
func deriveAge(rec map[string]any, year int) (int, error) {
	if v, ok := rec[ColAge]; ok {
		age, err := intValue(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrSchema, ColAge, err)
		}
		return age, nil
	}

	v, ok := rec[ColDateOfBirth]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSchema, ColAge)
	}
	dob, ok := v.(string)
	if !ok || len(dob) < 4 {
		return 0, fmt.Errorf("%w: %s %q has no year prefix", ErrDerivation, ColDateOfBirth, v)
	}
	birthYear, err := strconv.Atoi(dob[:4])
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q has non-numeric year prefix", ErrDerivation, ColDateOfBirth, dob)
	}
	return year - birthYear, nil
}

// deriveIDVerified maps the verification status to a binary flag.
// Anything other than exactly "Y" is treated as unverified, including
// lowercase, empty and null values. This silent default mirrors the
// original labeling behavior.
func deriveIDVerified(rec map[string]any) (int, error) {
	if v, ok := rec[ColIDVerified]; ok {
		flag, err := intValue(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrSchema, ColIDVerified, err)
		}
		return flag, nil
	}

	v, ok := rec[ColIDStatus]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSchema, ColIDVerified)
	}
	if s, ok := v.(string); ok && s == "Y" {
		return 1, nil
	}
	return 0, nil
}

// deriveCrossBorder compares birth country to receiver country with a
// case-sensitive exact match. Both fields must be present unless the
// flag is supplied directly.
func deriveCrossBorder(rec map[string]any) (int, error) {
	if v, ok := rec[ColCrossBorder]; ok {
		flag, err := intValue(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrSchema, ColCrossBorder, err)
		}
		return flag, nil
	}

	birth, ok := rec[ColCountryOfBirth].(string)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, ColCountryOfBirth)
	}
	receiver, ok := rec[ColReceiverCountry].(string)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, ColReceiverCountry)
	}

	if birth != receiver {
		return 1, nil
	}
	return 0, nil
}

func stringField(rec map[string]any, col string) (string, error) {
	v, ok := rec[col]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSchema, col)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrSchema, col, v)
	}
	return s, nil
}

// intValue accepts the numeric shapes JSON decoding and callers produce.
func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
