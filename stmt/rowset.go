package stmt

import (
	"io"

	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/client"
)

// RowsetPolicy controls how a freshly executed statement moves past
// rowsets that carry no columns, such as row-count notices from SET
// statements, triggers, or the leading statements of a batch.
type RowsetPolicy struct {
	// DrainEmpty reads and discards the rows of a zero-column rowset
	// before advancing. Some TDS clients refuse to advance otherwise.
	DrainEmpty bool

	// StopOnProbeError treats any error while probing for the next
	// rowset as "no more rowsets". The wire protocol does not separate
	// a real failure from the end of the results at that point, so
	// this trades error reporting for compatibility with such clients.
	StopOnProbeError bool
}

var (
	// SkipEmpty advances over empty rowsets and reports probe errors.
	SkipEmpty = RowsetPolicy{}

	// DrainAndProbe drains empty rowsets and stops quietly on probe errors.
	DrainAndProbe = RowsetPolicy{DrainEmpty: true, StopOnProbeError: true}
)

// skipEmptyRowsets advances cur until it sits on a rowset with at least
// one column or no further rowset exists. It returns how many rowsets it
// skipped.
func skipEmptyRowsets(cur client.Cursor, policy RowsetPolicy, logger *zap.Logger) (int, error) {
	skipped := 0
	for len(cur.Columns()) == 0 {
		if policy.DrainEmpty {
			if err := discardRows(cur); err != nil {
				if policy.StopOnProbeError {
					logger.Debug("stopped on error while draining empty rowset", zap.Int("skipped", skipped), zap.Error(err))
					return skipped, nil
				}
				return skipped, err
			}
		}

		more, err := cur.NextResultSet()
		if err != nil {
			if policy.StopOnProbeError {
				logger.Debug("treating rowset probe error as end of results", zap.Int("skipped", skipped), zap.Error(err))
				return skipped, nil
			}
			return skipped, err
		}
		if !more {
			return skipped, nil
		}
		skipped++
	}
	return skipped, nil
}

func discardRows(cur client.Cursor) error {
	for {
		if _, err := cur.FetchRow(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
