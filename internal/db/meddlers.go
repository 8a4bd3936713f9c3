package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("hash", HashMeddler{})
	meddler.Register("address", AddressMeddler{})
	meddler.Register("uuid", UUIDMeddler{})
}

// nullableString asserts the scan target every converter here reads
// through. Columns are nullable so rows written before a column existed
// still scan.
func nullableString(scanTarget interface{}) (*sql.NullString, error) {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return nil, fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}
	return ns, nil
}

// HashMeddler stores common.Hash columns as 0x-prefixed hex strings.
type HashMeddler struct{}

func (HashMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(sql.NullString), nil
}

func (HashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, err := nullableString(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case **common.Hash:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		h := common.HexToHash(ns.String)
		*ptr = &h
	case *common.Hash:
		if !ns.Valid {
			*ptr = common.Hash{}
			return nil
		}
		*ptr = common.HexToHash(ns.String)
	default:
		return fmt.Errorf("expected *common.Hash or **common.Hash, got %T", fieldAddr)
	}

	return nil
}

func (HashMeddler) PreWrite(field interface{}) (interface{}, error) {
	switch v := field.(type) {
	case common.Hash:
		return v.Hex(), nil
	case *common.Hash:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	}
	return nil, fmt.Errorf("expected common.Hash or *common.Hash, got %T", field)
}

// AddressMeddler stores common.Address columns as checksummed hex strings.
type AddressMeddler struct{}

func (AddressMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(sql.NullString), nil
}

func (AddressMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, err := nullableString(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case **common.Address:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		a := common.HexToAddress(ns.String)
		*ptr = &a
	case *common.Address:
		if !ns.Valid {
			*ptr = common.Address{}
			return nil
		}
		*ptr = common.HexToAddress(ns.String)
	default:
		return fmt.Errorf("expected *common.Address or **common.Address, got %T", fieldAddr)
	}

	return nil
}

func (AddressMeddler) PreWrite(field interface{}) (interface{}, error) {
	switch v := field.(type) {
	case common.Address:
		return v.Hex(), nil
	case *common.Address:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	}
	return nil, fmt.Errorf("expected common.Address or *common.Address, got %T", field)
}

// UUIDMeddler stores uuid.UUID columns in their canonical string form.
type UUIDMeddler struct{}

func (UUIDMeddler) PreRead(fieldAddr interface{}) (interface{}, error) {
	return new(sql.NullString), nil
}

func (UUIDMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, err := nullableString(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case **uuid.UUID:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		id, err := uuid.Parse(ns.String)
		if err != nil {
			return fmt.Errorf("parsing uuid %q: %w", ns.String, err)
		}
		*ptr = &id
	case *uuid.UUID:
		if !ns.Valid {
			*ptr = uuid.Nil
			return nil
		}
		id, err := uuid.Parse(ns.String)
		if err != nil {
			return fmt.Errorf("parsing uuid %q: %w", ns.String, err)
		}
		*ptr = id
	default:
		return fmt.Errorf("expected *uuid.UUID or **uuid.UUID, got %T", fieldAddr)
	}

	return nil
}

func (UUIDMeddler) PreWrite(field interface{}) (interface{}, error) {
	switch v := field.(type) {
	case uuid.UUID:
		return v.String(), nil
	case *uuid.UUID:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	}
	return nil, fmt.Errorf("expected uuid.UUID or *uuid.UUID, got %T", field)
}
