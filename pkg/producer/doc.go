/*
Package producer implements Burrow's producer cycle engine: the state
machine that turns one populator run into a published, proved, announced
dataset version — or rolls everything back.

# The Cycle

RunCycle drives the phases in order, emitting start/complete events to
the registered listeners for the cycle as a whole and for the populate,
publish, integrity check, validate, and announce phases:

	mint -> prepare -> populate -> diff test
	     -> publish -> integrity check -> validate -> announce -> commit

Exactly one of three outcomes occurs per cycle:

  - Produced: a new version is announced and becomes current.
  - No-delta: the populator ran but nothing changed; no version is
    announced and the write engine is reset.
  - Failed: a phase failed; the write engine is reset, the read-state
    holder keeps its pre-cycle value, and staged blobs are cleaned.

Only validation failures surface as RunCycle's error; all other failures
are reported via listeners, cycle status, and the log.

# Integrity

Before a version is announced, the integrity check round-trips the
staged artifacts through independent read engines: the snapshot is
materialized the way a cold-starting consumer would, the forward delta
must carry the current state to the pending state's checksum, and the
reverse delta must carry the pending state back to the current state's
checksum, both restricted to the schema intersection. A mismatch is
fatal for the cycle.

# Snapshot Cadence

Deltas publish synchronously every producing cycle. Snapshots publish
synchronously by default; with WithNumStatesBetweenSnapshots(k) they
publish every k+1 producing cycles through the snapshot executor,
keeping snapshot I/O off the cycle's hot path while still providing
periodic cold-start entry points. A deferred snapshot publish failure is
logged and absorbed: the delta chain stands on its own.

# Usage

	p, err := producer.New(
		producer.WithStagingDir("/var/lib/burrow/staging"),
		producer.WithPublisher(store),
		producer.WithAnnouncer(store),
		producer.WithSchemas(movieSchema),
	)
	if err != nil {
		return err
	}

	v, err := p.RunCycle(func(ws *producer.WriteState) error {
		_, err := ws.Add("movie", engine.Values{"id": int64(1), "title": "Heat"})
		return err
	})
*/
package producer
