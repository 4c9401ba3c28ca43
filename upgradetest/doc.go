/*
Package upgradetest provides helpers for testing migrations: a store that
fails writes on demand and a disk backed commit store.
*/
package upgradetest
