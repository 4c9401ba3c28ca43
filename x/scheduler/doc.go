/*
Package scheduler holds the schema migrations of the scheduler unit.

The agenda is a list of calls scheduled for later execution. In version 0 each
agenda entry was stored under the "sched:agenda:" prefix as a raw value with
the priority in the first byte followed by the call. Version 1 stores each
entry as a serialized Scheduled object under the "sched:agenda1:" prefix.
*/
package scheduler
