/*
Package gconf implements a configuration store intended to be used as a
global, in-database configuration.

Each package owns a single configuration entity, stored under the "_c:" key
prefix followed by the package name. The value is serialized by the
configuration object itself, so any binary codec can be used.

Configuration is validated before it is written. An object that fails
validation never reaches the database.
*/
package gconf
