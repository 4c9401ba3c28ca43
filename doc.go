/*
Package upgrade defines the interfaces shared by the migration engine and its
collaborators: the key-value store abstraction consumed by every migration
step, and the context helpers used to pass a logger down to them.

The engine itself lives in the migration package. Storage adapters live in
the store package and its subpackages. Concrete units with their migration
steps live under x/ and are composed into one ordered set by the app
package.

We pass context through context.Context. There should exist two functions
for every XYZ of type T that we want to support in Context:

  WithXYZ(Context, T) Context
  GetXYZ(Context) (val T, ok bool)
*/
package upgrade
