package polka

// Source parses record directories for a Map and names their keys. The
// map never looks inside a record itself; everything it knows about R
// goes through this interface.
//
// Implementations must keep identifier order and number order in
// agreement: for any two records M and N, Number(M) > Number(N) exactly
// when ID(M) > ID(N). The binary search over directory names is only
// correct under this rule.
//
// Load must be reentrant and must not call back into the map; it either
// returns a record or an error meaning "no valid record here". The map
// treats every Load error the same way: log a warning, report the record
// as absent, and drop whatever hint led to the attempt.
type Source[R any] interface {
	// Load parses the directory at the given path into a record.
	Load(dir string) (R, error)

	// ID returns the record's identifier, its directory name.
	ID(r R) string

	// Number returns the record's number.
	Number(r R) int64

	// Accept reports whether a child directory name looks like a record
	// directory. Plain-integer names are shortcut links, not records,
	// and must be rejected here.
	Accept(name string) bool
}
