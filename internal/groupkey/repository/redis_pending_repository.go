package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

const (
	// pendingPrefix:{conversation}:{version} is a hash of user id to entry.
	pendingPrefix = "groupkeys:pending:"
	// distributorPrefix:{distributor} is a sorted set of "{conversation}:{version}" scored by last update.
	distributorPrefix = "groupkeys:pending:distributor:"
)

// pendingEntry is the JSON form of a pending member stored in redis.
type pendingEntry struct {
	DistributorID string    `json:"distributor_id"`
	Reason        string    `json:"reason"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RedisPendingRepository tracks undelivered members in redis.
type RedisPendingRepository struct {
	rdb redis.UniversalClient
}

func pendingKey(conversationID uuid.UUID, version uint) string {
	return pendingPrefix + refMember(conversationID, version)
}

func distributorKey(distributorID uuid.UUID) string {
	return distributorPrefix + distributorID.String()
}

func refMember(conversationID uuid.UUID, version uint) string {
	return conversationID.String() + ":" + strconv.FormatUint(uint64(version), 10)
}

func parseRefMember(member string) (groupkeyDomain.KeyRef, error) {
	conv, version, ok := strings.Cut(member, ":")
	if !ok {
		return groupkeyDomain.KeyRef{}, fmt.Errorf("malformed pending reference %q", member)
	}
	id, err := uuid.Parse(conv)
	if err != nil {
		return groupkeyDomain.KeyRef{}, fmt.Errorf("malformed pending reference %q: %w", member, err)
	}
	v, err := strconv.ParseUint(version, 10, 0)
	if err != nil {
		return groupkeyDomain.KeyRef{}, fmt.Errorf("malformed pending reference %q: %w", member, err)
	}
	return groupkeyDomain.KeyRef{ConversationID: id, Version: uint(v)}, nil
}

// Save stores each entry and indexes its version under the distributor.
func (r *RedisPendingRepository) Save(ctx context.Context, pending []groupkeyDomain.PendingMember) error {
	if len(pending) == 0 {
		return nil
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entry := range pending {
			data, err := json.Marshal(pendingEntry{
				DistributorID: entry.DistributorID.String(),
				Reason:        string(entry.Reason),
				Attempts:      entry.Attempts,
				LastError:     entry.LastError,
				CreatedAt:     entry.CreatedAt,
				UpdatedAt:     entry.UpdatedAt,
			})
			if err != nil {
				return err
			}
			pipe.HSet(ctx, pendingKey(entry.ConversationID, entry.KeyVersion), entry.UserID.String(), data)
			pipe.ZAdd(ctx, distributorKey(entry.DistributorID), redis.Z{
				Score:  float64(entry.UpdatedAt.UnixMilli()),
				Member: refMember(entry.ConversationID, entry.KeyVersion),
			})
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to save pending member")
	}
	return nil
}

// List returns the pending members of one key version, oldest first.
func (r *RedisPendingRepository) List(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) ([]groupkeyDomain.PendingMember, error) {
	fields, err := r.rdb.HGetAll(ctx, pendingKey(conversationID, version)).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending members")
	}

	pending := make([]groupkeyDomain.PendingMember, 0, len(fields))
	for userID, raw := range fields {
		entry, err := decodePending(conversationID, version, userID, raw)
		if err != nil {
			return nil, err
		}
		pending = append(pending, entry)
	}

	slices.SortFunc(pending, func(a, b groupkeyDomain.PendingMember) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID.String(), b.UserID.String())
	})
	return pending, nil
}

// ListDistributions returns the oldest refs first. Refs whose hash has
// already been emptied are pruned on the way.
func (r *RedisPendingRepository) ListDistributions(
	ctx context.Context,
	distributorID uuid.UUID,
	limit int,
) ([]groupkeyDomain.KeyRef, error) {
	key := distributorKey(distributorID)
	members, err := r.rdb.ZRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending distributions")
	}

	refs := make([]groupkeyDomain.KeyRef, 0, len(members))
	for _, member := range members {
		ref, err := parseRefMember(member)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse pending distribution")
		}
		exists, err := r.rdb.Exists(ctx, pendingKey(ref.ConversationID, ref.Version)).Result()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to check pending distribution")
		}
		if exists == 0 {
			if err := r.rdb.ZRem(ctx, key, member).Err(); err != nil {
				return nil, apperrors.Wrap(err, "failed to prune pending distribution")
			}
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Remove deletes the entries of userIDs for one key version.
func (r *RedisPendingRepository) Remove(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	userIDs []uuid.UUID,
) error {
	if len(userIDs) == 0 {
		return nil
	}
	key := pendingKey(conversationID, version)

	fields := make([]string, len(userIDs))
	for i, id := range userIDs {
		fields[i] = id.String()
	}

	// Remember whose sorted sets reference this hash before the entries go away.
	raw, err := r.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return apperrors.Wrap(err, "failed to read pending members")
	}
	distributors := make(map[string]struct{})
	for _, value := range raw {
		s, ok := value.(string)
		if !ok {
			continue
		}
		var entry pendingEntry
		if err := json.Unmarshal([]byte(s), &entry); err == nil {
			distributors[entry.DistributorID] = struct{}{}
		}
	}

	if err := r.rdb.HDel(ctx, key, fields...).Err(); err != nil {
		return apperrors.Wrap(err, "failed to remove pending members")
	}

	remaining, err := r.rdb.HLen(ctx, key).Result()
	if err != nil {
		return apperrors.Wrap(err, "failed to count pending members")
	}
	if remaining > 0 {
		return nil
	}

	member := refMember(conversationID, version)
	for distributor := range distributors {
		if err := r.rdb.ZRem(ctx, distributorPrefix+distributor, member).Err(); err != nil {
			return apperrors.Wrap(err, "failed to remove pending distribution")
		}
	}
	return nil
}

func decodePending(conversationID uuid.UUID, version uint, userID, raw string) (groupkeyDomain.PendingMember, error) {
	var entry pendingEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return groupkeyDomain.PendingMember{}, apperrors.Wrap(err, "failed to decode pending member")
	}
	user, err := uuid.Parse(userID)
	if err != nil {
		return groupkeyDomain.PendingMember{}, apperrors.Wrap(err, "failed to parse pending user id")
	}
	distributor, err := uuid.Parse(entry.DistributorID)
	if err != nil {
		return groupkeyDomain.PendingMember{}, apperrors.Wrap(err, "failed to parse distributor id")
	}
	return groupkeyDomain.PendingMember{
		ConversationID: conversationID,
		KeyVersion:     version,
		UserID:         user,
		DistributorID:  distributor,
		Reason:         groupkeyDomain.PendingReason(entry.Reason),
		Attempts:       entry.Attempts,
		LastError:      entry.LastError,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}, nil
}

// NewRedisPendingRepository creates a new RedisPendingRepository.
func NewRedisPendingRepository(rdb redis.UniversalClient) *RedisPendingRepository {
	return &RedisPendingRepository{rdb: rdb}
}
