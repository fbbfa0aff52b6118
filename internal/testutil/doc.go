// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing agent snapshots, catalogs and
// envelopes, and to stand in for the settlement authority. They are not
// intended for production usage.
package testutil
