package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
	groupkeyUseCase "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/usecase"
)

// RunRotateGroupKey creates the next key version of a conversation and hands it
// to every active member. Members that could not be served are reported as pending.
func RunRotateGroupKey(
	ctx context.Context,
	useCase groupkeyUseCase.RotationUseCase,
	logger *slog.Logger,
	writer io.Writer,
	conversation string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	conversationID, err := parseConversationID(conversation)
	if err != nil {
		return err
	}

	logger.Info("rotating group key", slog.String("conversation_id", conversationID.String()))

	result, err := useCase.RotateGroupKey(ctx, conversationID)
	if err != nil && result == nil {
		return fmt.Errorf("failed to rotate group key: %w", err)
	}

	if writeErr := writeOutcome(writer, format, "Rotated", conversationID, result.Version, result.Outcome); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return fmt.Errorf("rotated to key version %d but pending members were not recorded for retry: %w",
			result.Version, err)
	}
	return nil
}

// RunRetryPending re-sends one key version to its pending members.
func RunRetryPending(
	ctx context.Context,
	useCase groupkeyUseCase.DistributionUseCase,
	logger *slog.Logger,
	writer io.Writer,
	conversation string,
	version uint,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	conversationID, err := parseConversationID(conversation)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("version must be at least 1")
	}

	logger.Info("retrying pending distribution",
		slog.String("conversation_id", conversationID.String()),
		slog.Uint64("key_version", uint64(version)),
	)

	outcome, err := useCase.RetryPending(ctx, conversationID, version)
	if err != nil && outcome == nil {
		return fmt.Errorf("failed to retry pending distribution: %w", err)
	}

	if writeErr := writeOutcome(writer, format, "Retried", conversationID, version, outcome); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return fmt.Errorf("members still pending were not recorded for retry: %w", err)
	}
	return nil
}

// RunCheckGroupKey reports the current key version of a conversation and
// whether the local identity can unwrap it. The key itself is never printed.
func RunCheckGroupKey(
	ctx context.Context,
	useCase groupkeyUseCase.KeyAccessUseCase,
	logger *slog.Logger,
	writer io.Writer,
	conversation string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	conversationID, err := parseConversationID(conversation)
	if err != nil {
		return err
	}

	version, key, err := useCase.GetCurrentGroupKey(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get current group key: %w", err)
	}
	algorithm := key.Algorithm()
	key.Destroy()

	logger.Debug("group key readable",
		slog.String("conversation_id", conversationID.String()),
		slog.Uint64("key_version", uint64(version)),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"conversation_id": conversationID.String(),
			"key_version":     version,
			"algorithm":       string(algorithm),
			"readable":        true,
		})
	}

	_, err = fmt.Fprintf(writer,
		"Conversation %s is at key version %d (%s), readable by the local identity\n",
		conversationID, version, algorithm,
	)
	return err
}

func writeOutcome(
	writer io.Writer,
	format string,
	verb string,
	conversationID uuid.UUID,
	version uint,
	outcome *groupkeyDomain.DistributionOutcome,
) error {
	if format == "json" {
		pending := make([]map[string]any, 0, len(outcome.Pending))
		for _, p := range outcome.Pending {
			pending = append(pending, map[string]any{
				"user_id":  p.UserID.String(),
				"reason":   string(p.Reason),
				"attempts": p.Attempts,
				"error":    p.LastError,
			})
		}
		return writeJSON(writer, map[string]any{
			"conversation_id": conversationID.String(),
			"key_version":     version,
			"delivered":       len(outcome.Delivered),
			"pending":         pending,
		})
	}

	if _, err := fmt.Fprintf(writer,
		"%s key version %d of conversation %s: %d delivered, %d pending\n",
		verb, version, conversationID, len(outcome.Delivered), len(outcome.Pending),
	); err != nil {
		return err
	}
	for _, p := range outcome.Pending {
		if _, err := fmt.Fprintf(writer, "  pending %s: %s\n", p.UserID, p.Reason); err != nil {
			return err
		}
	}
	return nil
}
