// Package stores persists engine runs in SQLite.
//
// A run is one engine session; each call to Run adds an epoch row holding
// its batch count, iteration range and outcome. The schema is applied with
// embedded golang-migrate migrations, and the database is opened in WAL mode
// with foreign keys enforced, so deleting a run deletes its epochs.
//
// Recorder wires a Store into an engine through its hooks:
//
//	rec, err := stores.NewRecorder(ctx, store, eng)
//	if err != nil {
//	    return err
//	}
//	_, err = eng.Run()
//	if err != nil {
//	    _ = rec.Finish(stores.RunStatusFailed, err)
//	    return err
//	}
//	return rec.Finish(stores.RunStatusCompleted, nil)
package stores
