package token

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
)

// ErrReplayed marks a presented token that was already rotated once: the
// copy being presented is stolen or stale. Callers surface it to clients
// exactly like any other invalid token.
var ErrReplayed = errors.New("refresh token replayed")

// ReplayDetector turns "a rotated token came back" into family-wide
// revocation plus a security event. A legitimate client never reuses a
// rotated refresh token, so reuse means the lineage is compromised and the
// conservative move is to kill all of it.
type ReplayDetector struct {
	store  Store
	events audit.Sink
	log    *zap.Logger
}

func NewReplayDetector(store Store, events audit.Sink, log *zap.Logger) *ReplayDetector {
	return &ReplayDetector{
		store:  store,
		events: events,
		log:    log,
	}
}

// Validate inspects a looked-up record's position in its chain. It returns
// nil when the record is live, ErrReplayed after revoking the family when
// the record was already rotated, and ErrNotLive for revoked or expired
// records (already terminal, nothing more to revoke).
func (d *ReplayDetector) Validate(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()

	switch {
	case rec.Rotated():
		d.killFamily(ctx, rec)
		return ErrReplayed
	case rec.Revoked(), rec.Expired(now):
		return ErrNotLive
	default:
		return nil
	}
}

// OnRotationLost handles the loser of a concurrent rotation race: its CAS
// found the record already rotated, which is treated as a near-simultaneous
// replay of the same token.
func (d *ReplayDetector) OnRotationLost(ctx context.Context, rec *Record) error {
	d.killFamily(ctx, rec)
	return ErrReplayed
}

func (d *ReplayDetector) killFamily(ctx context.Context, rec *Record) {
	revoked, err := d.store.RevokeFamily(ctx, rec.FamilyID, time.Now().UTC())
	if err != nil {
		// The deny still stands; the family stays vulnerable until a retry,
		// which is why this is logged at error level.
		d.log.Error("failed to revoke token family after replay",
			zap.String("family_id", rec.FamilyID),
			zap.Error(err))
	}

	accountID := rec.AccountID
	familyID := rec.FamilyID
	d.events.Record(ctx, audit.Event{
		EventType: audit.EventRefreshReplay,
		AccountID: &accountID,
		FamilyID:  &familyID,
	})

	d.log.Warn("refresh token replay detected",
		zap.String("account_id", rec.AccountID),
		zap.String("family_id", rec.FamilyID),
		zap.Int64("records_revoked", revoked))
}
