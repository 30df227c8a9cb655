/*
Package bench contains the bench command group of the entitylocker CLI.

Every subcommand runs one scenario against a fresh in-process locker:

	counter    many goroutines increment one counter inside RunWithLock
	reentrant  the same goroutines increment it in an outer and a nested lock
	deadlock   two goroutines lock (1, 2) and (2, 1); the second order is rejected
	timeout    all goroutines try to lock a held entity with a bounded wait
	transfer   random transfers between accounts of an entitycache.ICache

After a run the latency of the protected operations is printed together with
the invariants that were checked. The command exits with an error if one of
them does not hold.

Examples:

	entitylocker bench counter --threads 1000 --iterations 1000
	entitylocker bench timeout --lock-timeout 20ms --policy retain
	ENTITYLOCKER_METRICS_ENDPOINT=localhost:9100 entitylocker bench transfer
*/
package bench
