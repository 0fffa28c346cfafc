// Package password verifies login credentials against stored hashes.
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] additionally accepts bcrypt hashes ($2a$, $2b$, $2y$) so accounts
// migrated from older systems keep working; [Argon2.NeedsUpgrade] tells the
// caller when a stored hash should be replaced.
//
// The package never stores, logs or returns plaintext and imports no other
// authcore package.
package password
