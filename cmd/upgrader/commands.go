package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/iov-one/upgrade/app"
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
	"github.com/iov-one/upgrade/store/iavl"
)

// dbName is the name of the database kept in the home directory.
const dbName = "upgrade"

// openStore opens the store kept in the home directory. The returned
// function must be called to release the database.
func openStore(home string) (*app.CommitStore, func(), error) {
	db, err := iavl.NewCommitStore(home, dbName)
	if err != nil {
		return nil, nil, err
	}
	cs, err := app.NewCommitStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return cs, func() { db.Close() }, nil
}

// initCmd stores the database weights in the store configuration.
func initCmd(ctx context.Context, out io.Writer, conf *config, args []string) error {
	def := migration.RocksDBWeight
	if conf.Weight != nil {
		def = *conf.Weight
	}
	fl := flag.NewFlagSet("init", flag.ContinueOnError)
	fl.SetOutput(out)
	var (
		readFl  = fl.Uint64("read", uint64(def.Read), "cost of a single database read")
		writeFl = fl.Uint64("write", uint64(def.Write), "cost of a single database write")
	)
	if err := fl.Parse(args); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}

	cs, cleanup, err := openStore(conf.Home)
	if err != nil {
		return err
	}
	defer cleanup()

	c := migration.Configuration{ReadWeight: *readFl, WriteWeight: *writeFl}
	if err := migration.SaveConfiguration(cs.DeliverStore(), c); err != nil {
		return errors.Wrap(err, "save configuration")
	}
	id, err := cs.Commit()
	if err != nil {
		return errors.Wrap(err, "commit")
	}
	fmt.Fprintf(out, "read weight %d, write weight %d stored at version %d\n",
		c.ReadWeight, c.WriteWeight, id.Version)
	return nil
}

// planCmd prints the pending migrations of every unit.
func planCmd(ctx context.Context, out io.Writer, conf *config) error {
	cs, cleanup, err := openStore(conf.Home)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := newRunner(cs)
	if err != nil {
		return err
	}
	plans, err := runner.Plan(ctx, cs.DeliverStore())
	if err != nil {
		return errors.Wrap(err, "plan")
	}
	for _, p := range plans {
		switch {
		case p.Ahead:
			fmt.Fprintf(out, "%s at version %d is ahead of this software, skipped\n", p.Unit, p.Current)
		case len(p.Pending) == 0:
			fmt.Fprintf(out, "%s at version %d is up to date\n", p.Unit, p.Current)
		default:
			fmt.Fprintf(out, "%s %d->%d: %s\n", p.Unit, p.Current, p.Target, strings.Join(p.Pending, ", "))
		}
	}
	return nil
}

// runCmd applies all pending migrations and commits the result.
func runCmd(ctx context.Context, out io.Writer, conf *config) error {
	cs, cleanup, err := openStore(conf.Home)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := newRunner(cs)
	if err != nil {
		return err
	}
	report, id, err := app.Upgrade(ctx, cs, runner, migration.Weight(conf.MaxWeight))
	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return err
	}
	if len(report.Changes) == 0 {
		fmt.Fprintf(out, "nothing to commit, store at version %d\n", id.Version)
		return nil
	}
	fmt.Fprintf(out, "committed version %d %X\n", id.Version, id.Hash)
	return nil
}

// verifyCmd runs all migrations in verification mode and checks the
// configured expectations. The store is never modified.
func verifyCmd(ctx context.Context, out io.Writer, conf *config) error {
	cs, cleanup, err := openStore(conf.Home)
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := migration.LoadDBWeight(cs.DeliverStore())
	if err != nil {
		return err
	}
	h := migration.NewHarness(app.Migrations(w))
	report, err := h.Verify(ctx, cs.DeliverStore(), conf.Expect...)
	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return err
	}
	for _, e := range conf.Expect {
		fmt.Fprintf(out, "ok: %s\n", e)
	}
	fmt.Fprintf(out, "verified, state hash %X\n", report.StateHash)
	return nil
}

func newRunner(cs *app.CommitStore) (*migration.Runner, error) {
	w, err := migration.LoadDBWeight(cs.DeliverStore())
	if err != nil {
		return nil, err
	}
	return migration.NewRunner(app.Migrations(w)), nil
}

func printReport(out io.Writer, r *migration.Report) {
	for _, u := range r.Units {
		fmt.Fprintf(out, "%s %d->%d cost %d\n", u.Unit, u.From, u.To, u.Cost)
		for _, name := range u.Applied {
			fmt.Fprintf(out, "  %s\n", name)
		}
	}
	if r.Failure != nil {
		fmt.Fprintf(out, "failed: %s\n", r.Failure)
	}
	fmt.Fprintf(out, "total cost %d\n", r.Cost)
}
