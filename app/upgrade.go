package app

import (
	"context"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
)

// Upgrade runs all pending migrations on the deliver store and commits the
// result as a new store version.
//
// Nothing is committed if the run fails or if its cost exceeds maxWeight. A
// zero maxWeight disables the budget. When a run is refused because of its
// cost, the returned report describes the work that was discarded.
func Upgrade(
	ctx context.Context,
	cs *CommitStore,
	runner *migration.Runner,
	maxWeight migration.Weight,
) (*migration.Report, upgrade.CommitID, error) {
	report, err := runner.RunReport(ctx, cs.DeliverStore())
	if err != nil {
		cs.Discard()
		return report, upgrade.CommitID{}, err
	}
	if maxWeight != 0 && report.Cost > maxWeight {
		cs.Discard()
		return report, upgrade.CommitID{}, errors.Wrapf(errors.ErrOverflow,
			"migration cost %d exceeds budget %d", report.Cost, maxWeight)
	}
	if len(report.Changes) == 0 {
		cs.Discard()
		id, err := cs.CommitInfo()
		return report, id, err
	}

	id, err := cs.Commit()
	if err != nil {
		return report, id, errors.Wrap(err, "commit")
	}
	upgrade.GetLogger(ctx).Info("migrations committed",
		"version", id.Version, "hash", id.Hash, "cost", report.Cost)
	return report, id, nil
}
