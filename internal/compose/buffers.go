package compose

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// Buffers are the intermediate images of one composition: two column slots
// and two final slots. Each role publishes one slot at a time; the next
// operation reads the published slot and writes the other one.
type Buffers struct {
	fs     afero.Fs
	column [2]string
	final  [2]string

	// published slot per role, -1 until the first publish
	col int
	fin int
}

// NewBuffers names the four slots inside dir. Files are created lazily by
// the first operation writing them.
func NewBuffers(fs afero.Fs, dir string) *Buffers {
	return &Buffers{
		fs:     fs,
		column: [2]string{filepath.Join(dir, "column_0.jpg"), filepath.Join(dir, "column_1.jpg")},
		final:  [2]string{filepath.Join(dir, "final_0.jpg"), filepath.Join(dir, "final_1.jpg")},
		col:    -1,
		fin:    -1,
	}
}

// Column returns the published column slot, or "" when none.
func (b *Buffers) Column() string {
	if b.col < 0 {
		return ""
	}
	return b.column[b.col]
}

// NextColumn returns the column slot to write next.
func (b *Buffers) NextColumn() string {
	return b.column[(b.col+1)%2]
}

// PublishColumn makes the slot returned by NextColumn the published one.
func (b *Buffers) PublishColumn() {
	b.col = (b.col + 1) % 2
}

// Final returns the published final slot, or "" when none.
func (b *Buffers) Final() string {
	if b.fin < 0 {
		return ""
	}
	return b.final[b.fin]
}

// NextFinal returns the final slot to write next.
func (b *Buffers) NextFinal() string {
	return b.final[(b.fin+1)%2]
}

// PublishFinal makes the slot returned by NextFinal the published one.
func (b *Buffers) PublishFinal() {
	b.fin = (b.fin + 1) % 2
}

// Remove deletes all four slots. Slots that were never written are ignored.
func (b *Buffers) Remove() error {
	var err error
	for _, name := range append(b.column[:], b.final[:]...) {
		if rerr := b.fs.Remove(name); rerr != nil && !os.IsNotExist(rerr) {
			err = multierr.Append(err, rerr)
		}
	}
	return err
}
