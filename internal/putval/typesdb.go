package putval

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carbonfwd/carbonfwd"
)

// TypeDB maps type names to their data source descriptors, in the format of
// collectd's types.db:
//
//	if_octets    rx:DERIVE:0:U, tx:DERIVE:0:U
//
// "U" stands for an unbounded minimum or maximum.
type TypeDB struct {
	types map[string][]carbonfwd.DataSource
}

// NewTypeDB returns an empty TypeDB.
func NewTypeDB() *TypeDB {
	return &TypeDB{types: make(map[string][]carbonfwd.DataSource)}
}

// DefaultTypeDB returns a TypeDB preloaded with the handful of entries the
// bundled reader needs when no types file is configured.
func DefaultTypeDB() *TypeDB {
	db := NewTypeDB()
	err := db.Load(strings.NewReader(`
gauge      value:GAUGE:U:U
counter    value:COUNTER:U:U
derive     value:DERIVE:0:U
absolute   value:ABSOLUTE:0:U
cpu        value:DERIVE:0:U
memory     value:GAUGE:0:281474976710656
load       shortterm:GAUGE:0:5000, midterm:GAUGE:0:5000, longterm:GAUGE:0:5000
uptime     value:GAUGE:0:4294967295
users      value:GAUGE:0:65535
if_octets  rx:DERIVE:0:U, tx:DERIVE:0:U
if_errors  rx:DERIVE:0:U, tx:DERIVE:0:U
disk_octets read:DERIVE:0:U, write:DERIVE:0:U
`))
	if err != nil {
		panic(err) // Should never happen
	}
	return db
}

// Load reads types.db formatted lines, adding to or overriding the known
// types. Blank lines and lines starting with "#" are skipped.
func (db *TypeDB) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, specs, found := strings.Cut(line, " ")
		if !found {
			name, specs, found = strings.Cut(line, "\t")
		}
		if !found {
			return fmt.Errorf("malformed types.db line %q", line)
		}
		sources, err := parseSources(specs)
		if err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
		db.types[name] = sources
	}
	return scanner.Err()
}

// Lookup returns the data source descriptors for a type name.
func (db *TypeDB) Lookup(name string) ([]carbonfwd.DataSource, bool) {
	sources, ok := db.types[name]
	return sources, ok
}

func parseSources(specs string) ([]carbonfwd.DataSource, error) {
	var sources []carbonfwd.DataSource
	for _, spec := range strings.Split(specs, ",") {
		spec = strings.TrimSpace(spec)
		parts := strings.Split(spec, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed data source spec %q", spec)
		}
		dsType, err := carbonfwd.DSTypeFromString(parts[1])
		if err != nil {
			return nil, err
		}
		min, err := parseBound(parts[2])
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", parts[0], err)
		}
		max, err := parseBound(parts[3])
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", parts[0], err)
		}
		sources = append(sources, carbonfwd.DataSource{
			Name: parts[0],
			Type: dsType,
			Min:  min,
			Max:  max,
		})
	}
	return sources, nil
}

func parseBound(s string) (float64, error) {
	if s == "U" || s == "u" {
		return carbonfwd.Unbounded(), nil
	}
	return strconv.ParseFloat(s, 64)
}
