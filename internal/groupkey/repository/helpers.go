package repository

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// marshalUUIDs converts ids to their BINARY(16) form, in order.
func marshalUUIDs(ids ...uuid.UUID) ([][]byte, error) {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		raw, err := id.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal uuid")
		}
		out[i] = raw
	}
	return out, nil
}

// unmarshalUUIDs decodes raw[i] into dst[i].
func unmarshalUUIDs(raw [][]byte, dst ...*uuid.UUID) error {
	for i := range dst {
		if err := dst[i].UnmarshalBinary(raw[i]); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal uuid")
		}
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// expectOneRow maps a guarded update that matched nothing to ErrWrappedKeyNotFound.
func expectOneRow(result sql.Result, operation string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to "+operation)
	}
	if affected == 0 {
		return groupkeyDomain.ErrWrappedKeyNotFound
	}
	return nil
}
