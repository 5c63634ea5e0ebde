package record

// MergeStrategy reconciles a version conflict. It receives the record, the
// remote document and version that collided with local state, and a resolve
// function. The strategy must eventually call resolve exactly once, either
// with the merged document or with an error; extra calls are ignored. It
// runs outside the record lock, so strategies may read the record through
// its public methods and may resolve asynchronously.
//
// The resolved document is authoritative: it is adopted locally at the
// remote version and, if it differs from the remote document, re-sent to
// the server as the next version.
type MergeStrategy func(r *Record, remoteData any, remoteVersion int64, resolve func(err error, merged any))

// RemoteWins discards local changes in favor of the remote document.
func RemoteWins(r *Record, remoteData any, remoteVersion int64, resolve func(error, any)) {
	resolve(nil, remoteData)
}

// LocalWins keeps the local document and pushes it over the remote one.
func LocalWins(r *Record, remoteData any, remoteVersion int64, resolve func(error, any)) {
	resolve(nil, r.Get(""))
}
