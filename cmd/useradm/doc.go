// Command useradm manages accounts directly against the database, for
// bootstrapping the first administrator and recovering locked-out users.
package main
