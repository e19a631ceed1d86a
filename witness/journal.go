package witness

import (
	"bufio"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("semalock.witness")

// Append writes iv at the end of f.
func Append(f *os.File, iv Interval) error {
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return errors.Annotatef(err, "seeking to end of %s", f.Name())
	}
	return errors.Trace(NewEncoder(f).Encode(iv))
}

// ReadAll decodes every Interval in rs from the start. A truncated final
// frame, left by a holder killed halfway through a write, is logged and
// skipped.
func ReadAll(rs io.ReadSeeker) ([]Interval, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Annotate(err, "rewinding journal")
	}
	dec := NewDecoder(bufio.NewReader(rs))

	var ivs []Interval
	for {
		iv, err := dec.Decode()
		switch {
		case err == nil:
			ivs = append(ivs, iv)
		case err == io.EOF:
			return ivs, nil
		case err == io.ErrUnexpectedEOF:
			logger.Warningf("journal ends in a truncated record after %d intervals", len(ivs))
			return ivs, nil
		default:
			return ivs, errors.Trace(err)
		}
	}
}
