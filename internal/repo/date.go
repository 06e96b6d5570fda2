package repo

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// dateLayout is fixed width so that text comparison orders rows by time.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

// Date stores timestamps as UTC text columns, portable across SQLite and
// PostgreSQL.
type Date time.Time

func NewDate(t time.Time) Date {
	return Date(t.UTC())
}

func (d Date) Value() (driver.Value, error) {
	return time.Time(d).UTC().Format(dateLayout), nil
}

func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date(time.Time{})
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case time.Time:
		*d = Date(v.UTC())
		return nil
	}
	return fmt.Errorf("cannot scan type %T into Date", value)
}

func (d *Date) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return err
		}
	}
	*d = Date(t.UTC())
	return nil
}

func (d Date) String() string {
	return time.Time(d).Format(time.RFC3339Nano)
}

func (d Date) Time() time.Time {
	return time.Time(d)
}

func (d *Date) TimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}
