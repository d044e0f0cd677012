package loader

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/geoscore/internal/model"
)

// ReadCSV loads a comma-separated attribute table. charset names the file
// encoding (e.g. "latin1" for older Census name files); empty means UTF-8.
func ReadCSV(path string, cols Columns, charset string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open csv %s", path)
	}
	defer f.Close()

	r, err := decodeCharset(f, charset)
	if err != nil {
		return nil, err
	}
	return DecodeCSV(r, cols)
}

// DecodeCSV loads a UTF-8 comma-separated attribute table from r.
func DecodeCSV(r io.Reader, cols Columns) (*model.Dataset, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "loader: read csv")
	}
	return FromRows(rows, cols)
}

func decodeCharset(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
