package rec

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/learn-decentralized-systems/toyqueue"
	"golang.org/x/sync/errgroup"

	"github.com/drpcorg/polka/utils"
)

var ErrDuplicate = errors.New("the record is already shelved")

// Archive writes the on-disk layout a polka.Map reads: one directory per
// record named by a creation-time identifier, a manifest inside, and a
// numeric symlink beside it pointing at the directory. Append hands out
// strictly increasing identifiers and numbers, which is what keeps the
// two orders consistent for the map's search.
type Archive struct {
	dir string
	log utils.Logger

	mu    sync.Mutex
	last  int64
	stamp time.Time
}

type ArchiveOptions struct {
	Logger utils.Logger
}

func (o *ArchiveOptions) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
}

// OpenArchive creates dir if needed and recovers the last issued number
// and stamp from the newest readable manifest.
func OpenArchive(dir string, opts ArchiveOptions) (*Archive, error) {
	opts.SetDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	a := &Archive{dir: dir, log: opts.Logger}
	ids, err := a.list()
	if err != nil {
		return nil, err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		r, err := (Source{}).Load(filepath.Join(dir, ids[i]))
		if err != nil {
			a.log.Warn("skipping unreadable record", "dir", dir, "id", ids[i], "error", err)
			continue
		}
		a.last = r.Number()
		if at, err := time.Parse(IDFormat, ids[i]); err == nil {
			a.stamp = at
		}
		break
	}
	return a, nil
}

func (a *Archive) Dir() string {
	return a.dir
}

// list returns the shelved identifiers in ascending order.
func (a *Archive) list() ([]string, error) {
	des, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, de := range des {
		if IsRecordID(de.Name()) {
			ids = append(ids, de.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Append shelves a new record and returns it. The identifier is the
// creation stamp, nudged forward a nanosecond when the clock stands
// still, so it always sorts after every identifier issued before. A
// failed symlink only costs the fast path, so it is logged and ignored.
func (a *Archive) Append(body []byte, note string) (*Rec, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stamp := time.Now().UTC()
	if !stamp.After(a.stamp) {
		stamp = a.stamp.Add(time.Nanosecond)
	}
	r := New(stamp.Format(IDFormat), a.last+1, stamp, note, body)
	if err := a.write(r); err != nil {
		return nil, err
	}
	a.last = r.num
	a.stamp = stamp
	return r, nil
}

// write lays down the record directory, its manifest and the shortcut.
// The manifest lands via rename so readers never see a half-written one.
func (a *Archive) write(r *Rec) error {
	dir := filepath.Join(a.dir, r.id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrDuplicate
		}
		return err
	}
	tmp := filepath.Join(dir, ManifestName+".tmp")
	if err := os.WriteFile(tmp, r.TLV(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, ManifestName)); err != nil {
		return err
	}
	link := filepath.Join(a.dir, strconv.FormatInt(r.num, 10))
	if err := os.Symlink(r.id, link); err != nil {
		a.log.Warn("failed to plant shortcut", "link", link, "error", err)
	}
	return nil
}

// Remove unshelves a record: the shortcut first, then the directory, so
// no window exists where the shortcut points at nothing.
func (a *Archive) Remove(r *Rec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	link := filepath.Join(a.dir, strconv.FormatInt(r.num, 10))
	if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.RemoveAll(filepath.Join(a.dir, r.id))
}

// Report is what a Verify sweep found.
type Report struct {
	Checked int
	Broken  []string
}

// Verify reads every manifest on the shelf with the given number of
// workers and reports the identifiers that fail to parse or checksum.
// The sweep runs to completion unless ctx is canceled.
func (a *Archive) Verify(ctx context.Context, workers int) (*Report, error) {
	ids, err := a.list()
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	var mu sync.Mutex
	report := &Report{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := (Source{}).Load(filepath.Join(a.dir, id))
			mu.Lock()
			report.Checked++
			if err != nil {
				report.Broken = append(report.Broken, id)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(report.Broken)
	return report, nil
}

// Export reads every manifest off the shelf in identifier order. The
// records are raw manifest bytes, so a drain on another machine rebuilds
// an identical shelf.
func (a *Archive) Export() (toyqueue.Records, error) {
	ids, err := a.list()
	if err != nil {
		return nil, err
	}
	recs := make(toyqueue.Records, 0, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(a.dir, id, ManifestName))
		if err != nil {
			a.log.Warn("skipping unreadable record", "dir", a.dir, "id", id, "error", err)
			continue
		}
		recs = append(recs, data)
	}
	return recs, nil
}

// Import shelves exported manifests, skipping ones already present, and
// returns how many landed. Manifests must come from one shelf lineage:
// identifier order and number order have to agree with what is already
// here, Import does not reorder anything.
func (a *Archive) Import(recs toyqueue.Records) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, data := range recs {
		r, err := Parse(data)
		if err != nil {
			return n, err
		}
		if err := a.write(r); err != nil {
			if errors.Is(err, ErrDuplicate) {
				a.log.Debug("record already shelved", "dir", a.dir, "id", r.id)
				continue
			}
			return n, err
		}
		n++
		if r.num > a.last {
			a.last = r.num
		}
		if at, err := time.Parse(IDFormat, r.id); err == nil && at.After(a.stamp) {
			a.stamp = at
		}
	}
	return n, nil
}

// Feeder returns the shelf as a record stream, batch manifests at a time,
// ending with io.EOF. The identifier list is fixed at the call; records
// appended later are not fed.
func (a *Archive) Feeder(batch int) (toyqueue.FeedCloser, error) {
	ids, err := a.list()
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		batch = 64
	}
	return &feeder{a: a, ids: ids, batch: batch}, nil
}

type feeder struct {
	a     *Archive
	ids   []string
	batch int
}

func (f *feeder) Feed() (toyqueue.Records, error) {
	if len(f.ids) == 0 {
		return nil, io.EOF
	}
	n := f.batch
	if n > len(f.ids) {
		n = len(f.ids)
	}
	recs := make(toyqueue.Records, 0, n)
	for _, id := range f.ids[:n] {
		data, err := os.ReadFile(filepath.Join(f.a.dir, id, ManifestName))
		if err != nil {
			f.a.log.Warn("skipping unreadable record", "dir", f.a.dir, "id", id, "error", err)
			continue
		}
		recs = append(recs, data)
	}
	f.ids = f.ids[n:]
	return recs, nil
}

func (f *feeder) Close() error {
	f.ids = nil
	return nil
}

// Drainer returns the import side of the shelf as a toyqueue drain, so an
// exported stream pipes straight in.
func (a *Archive) Drainer() toyqueue.DrainCloser {
	return &drainer{a: a}
}

type drainer struct {
	a *Archive
}

func (d *drainer) Drain(recs toyqueue.Records) error {
	_, err := d.a.Import(recs)
	return err
}

func (d *drainer) Close() error {
	return nil
}
