/*
Package app composes the migrations of all units into a single set and
connects the runner with a committing store.

Migrations of the units imported from upstream are always executed before the
local ones. Changes are done on a cache of the committed state and are
persisted as a new store version only when all migrations succeed.
*/
package app
