package businessdays

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// HolidayFile is the on-disk holiday calendar format:
//
//	holidays:
//	  - date: 2024-12-25
//	    name: Christmas Day
type HolidayFile struct {
	Holidays []HolidayEntry `yaml:"holidays"`
}

type HolidayEntry struct {
	Date Date   `yaml:"date"`
	Name string `yaml:"name,omitempty"`
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// LoadHolidaysYAML decodes a holiday file from r.
func LoadHolidaysYAML(r io.Reader) ([]Date, error) {
	var file HolidayFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode holidays: %w", err)
	}
	out := make([]Date, 0, len(file.Holidays))
	for _, h := range file.Holidays {
		out = append(out, h.Date)
	}
	return out, nil
}

// LoadCalendar merges inline holiday strings with an optional YAML file.
func LoadCalendar(inline []string, path string) (*Calendar, error) {
	dates, err := ParseDates(inline)
	if err != nil {
		return nil, err
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open holidays file: %w", err)
		}
		defer f.Close()
		fromFile, err := LoadHolidaysYAML(f)
		if err != nil {
			return nil, err
		}
		dates = append(dates, fromFile...)
	}
	return New(dates...), nil
}
