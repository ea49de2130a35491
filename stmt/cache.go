package stmt

// cachedRowset holds the rows of one rowset that were read off the wire
// when its statement lost the connection's cursor.
type cachedRowset struct {
	columns []string
	rows    []map[string]any
}

// resultCache is the queue of rowsets a displaced statement still owes its
// caller. sets[0] is the rowset being read. An empty cache still answers
// fetches (with "no more rows"); the cursor it replaced is gone.
type resultCache struct {
	sets []cachedRowset
	// err is a read failure hit while draining. It is reported once the
	// rows read before it have been handed out.
	err error
}

func (c *resultCache) columns() []string {
	if len(c.sets) == 0 {
		return nil
	}
	return c.sets[0].columns
}

// next dequeues the front row of the current rowset.
func (c *resultCache) next() (map[string]any, bool, error) {
	if len(c.sets) == 0 || len(c.sets[0].rows) == 0 {
		if len(c.sets) > 1 {
			return nil, false, nil
		}
		err := c.err
		c.err = nil
		return nil, false, err
	}
	row := c.sets[0].rows[0]
	c.sets[0].rows = c.sets[0].rows[1:]
	return row, true, nil
}

// takeAll dequeues every remaining row of the current rowset.
func (c *resultCache) takeAll() ([]map[string]any, error) {
	if len(c.sets) == 0 {
		err := c.err
		c.err = nil
		return nil, err
	}
	rows := c.sets[0].rows
	c.sets[0].rows = nil
	if len(c.sets) == 1 {
		err := c.err
		c.err = nil
		return rows, err
	}
	return rows, nil
}

// nextRowset moves to the following cached rowset.
func (c *resultCache) nextRowset() bool {
	if len(c.sets) <= 1 {
		c.sets = nil
		return false
	}
	c.sets = c.sets[1:]
	return true
}

func (c *resultCache) len() int {
	n := 0
	for _, s := range c.sets {
		n += len(s.rows)
	}
	return n
}
