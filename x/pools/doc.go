/*
Package pools holds the schema migrations of the nomination pools unit.

Version 1 introduces the pool parameters. Before that version the parameters
were not stored at all and the defaults were compiled into the software.
*/
package pools
