/*
Package bounties declares the schema versions of the bounties unit.

The data layout of the unit was upgraded four times by releases that never
stamped the new version. The stored data is already in the newest format, so
the migrations only advance the stamp.
*/
package bounties
