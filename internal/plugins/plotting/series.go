package plotting

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrBadValue = errors.New("value is not a number")

// Series is the labelled values read from a tab separated file.
type Series struct {
	Labels []string
	Values []float64
}

// LoadSeries reads the values and labels columns (1-based) of the tab separated file at path,
// skipping its header row and the lines with fewer than two fields. With prepend the value is
// written in front of every label.
func LoadSeries(path string, valueCol, labelCol int, prepend bool) (s Series, err error) {
	file, err := os.Open(path)
	if err != nil {
		return Series{}, errors.Wrapf(err, "unable to open %s", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	first := true
	for scanner.Scan() {
		if first {
			first = false

			continue
		}
		fields := strings.Split(strings.TrimRight(scanner.Text(), "\r\n\t "), "\t")
		if len(fields) < 2 {
			continue
		}
		if valueCol > len(fields) || labelCol > len(fields) {
			return Series{}, errors.Errorf("%s: line %q has no column %d", path, scanner.Text(), max(valueCol, labelCol))
		}

		value, err := strconv.ParseFloat(fields[valueCol-1], 64)
		if err != nil {
			return Series{}, errors.Wrapf(ErrBadValue, "%s: %q", path, fields[valueCol-1])
		}
		label := fields[labelCol-1]
		if prepend {
			label = "(" + strconv.FormatFloat(value, 'f', 2, 64) + ") " + label
		}
		s.Labels = append(s.Labels, label)
		s.Values = append(s.Values, value)
	}
	if err := scanner.Err(); err != nil {
		return Series{}, errors.Wrapf(err, "unable to read %s", path)
	}

	return s, nil
}

// Limit keeps the first n values and sums the others into a last "Other" value.
func (s Series) Limit(n int) Series {
	if n >= len(s.Values) {
		return s
	}

	limited := Series{
		Labels: append(append([]string(nil), s.Labels[:n]...), "Other"),
		Values: append([]float64(nil), s.Values[:n]...),
	}
	other := 0.0
	for _, v := range s.Values[n:] {
		other += v
	}
	limited.Values = append(limited.Values, other)

	return limited
}
