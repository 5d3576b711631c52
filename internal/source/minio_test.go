package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqmpipeline/dqm/internal/colpath"
)

func TestNDJSONIteratorFillsOmittedColumns(t *testing.T) {
	body := `{"price": 1.5, "name": "a"}

{"name": "b"}
{"price": null}
`
	it := &ndjsonIterator{
		columns: []string{"price"},
		scanner: bufio.NewScanner(strings.NewReader(body)),
		current: "orders/part-0.ndjson",
	}
	defer it.Close()

	var got []interface{}
	for {
		rec, err := it.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.NotContains(t, rec, "name")
		v, err := colpath.Lookup(rec, "price")
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []interface{}{json.Number("1.5"), nil, nil}, got)
}

func TestNDJSONIteratorBadLine(t *testing.T) {
	it := &ndjsonIterator{
		columns: []string{"price"},
		scanner: bufio.NewScanner(strings.NewReader("{not json}\n")),
		current: "orders/part-1.ndjson",
	}
	_, err := it.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders/part-1.ndjson")
}

func TestProjectFill(t *testing.T) {
	rec := Record{"a": 1, "b": 2}
	assert.Equal(t, Record{"a": 1, "c": nil}, projectFill(rec, []string{"a", "c"}))
	assert.Equal(t, Record{"a": 1}, project(rec, []string{"a", "c"}))
}
