package polka

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/drpcorg/polka/utils"
)

// inventory is a frozen listing of the base directory: identifiers of
// record directories and numbers of shortcut links, both ascending. Like
// the cache it is copy-on-write; Map.inv always points at a complete
// generation.
type inventory struct {
	ids  utils.Sorted[string]
	nums utils.Sorted[int64]
}

var emptyInventory = &inventory{}

// seen files a record under both sequences. Returns the receiver when the
// keys are already known.
func (inv *inventory) seen(id string, num int64) *inventory {
	ids := inv.ids.Insert(id)
	nums := inv.nums.Insert(num)
	if len(ids) == len(inv.ids) && len(nums) == len(inv.nums) {
		return inv
	}
	return &inventory{ids: ids, nums: nums}
}

// seenAll is seen for a batch, paying for one copy instead of k.
func (inv *inventory) seenAll(ids []string, nums []int64) *inventory {
	add := false
	for _, id := range ids {
		if !inv.ids.Contains(id) {
			add = true
			break
		}
	}
	if !add {
		for _, n := range nums {
			if !inv.nums.Contains(n) {
				add = true
				break
			}
		}
	}
	if !add {
		return inv
	}
	return &inventory{
		ids:  utils.NewSorted(append(inv.ids.Clone(), ids...)...),
		nums: utils.NewSorted(append(inv.nums.Clone(), nums...)...),
	}
}

// dropShortcut forgets a shortcut number that turned out to be missing or
// lying, so no later search retries it.
func (inv *inventory) dropShortcut(num int64) *inventory {
	nums := inv.nums.Delete(num)
	if len(nums) == len(inv.nums) {
		return inv
	}
	return &inventory{ids: inv.ids, nums: nums}
}

// scanInventory lists the base directory once. Record directories are the
// children src.Accept likes; shortcut links are the children whose names
// parse as integers. Nothing is opened or followed here, names are enough.
// A missing base directory is an empty inventory, not an error.
func scanInventory[R any](dir string, src Source[R], log utils.Logger) (*inventory, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("no record directory yet", "dir", dir)
			return emptyInventory, nil
		}
		return nil, err
	}
	var ids []string
	var nums []int64
	for _, de := range des {
		name := de.Name()
		if src.Accept(name) {
			ids = append(ids, name)
		} else if n, err := strconv.ParseInt(name, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	return &inventory{
		ids:  utils.NewSorted(ids...),
		nums: utils.NewSorted(nums...),
	}, nil
}
