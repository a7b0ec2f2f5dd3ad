package meter

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/meterbus/internal/dv"
	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/units"
)

type logSetter interface {
	setLog(*logrus.Entry)
}

// Consume scans the telegram payload and hands the records to the meter. A
// telegram that cannot be scanned is discarded with a warning and the
// meter's state is left untouched.
func Consume(m Meter, t *frame.Telegram, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	info := m.Info()
	log = log.WithFields(logrus.Fields{"driver": info.Driver, "id": info.ID})
	if t.Encrypted() {
		log.WithField("security_mode", t.TPL.SecurityMode).Warn("discarding encrypted telegram")
		return ErrEncrypted
	}
	entries, err := dv.Scan(t.Payload)
	if err != nil {
		log.WithError(err).Warn("discarding telegram")
		return fmt.Errorf("%s %s: %w", info.Driver, info.ID, err)
	}
	t.Values = entries
	if l, ok := m.(logSetter); ok {
		l.setLog(log)
	}
	m.ProcessContent(t)
	log.WithField("records", len(entries)).Debug("telegram consumed")
	return nil
}

// Render returns the default fields of m keyed "<name>_<unit>", with text
// fields under their bare name. prefer overrides the display unit per
// quantity.
func Render(m Meter, prefer map[units.Quantity]units.Unit) map[string]any {
	info := m.Info()
	fields := map[string]any{
		"_":     "telegram",
		"meter": info.Driver,
		"name":  info.Name,
		"id":    info.ID,
	}
	if info.Media != "" {
		fields["media"] = info.Media
	}
	for _, p := range m.Prints() {
		if p.Flags&PrintDefault == 0 {
			continue
		}
		if p.Quantity == units.Text {
			if s := m.FieldText(p.Key); s != "" {
				fields[p.Name] = s
			}
			continue
		}
		u := p.Display
		if pu, ok := prefer[p.Quantity]; ok {
			u = pu
		}
		fields[p.Name+"_"+u.Suffix()] = units.Convert(m.FieldValue(p.Key), p.Unit, u)
	}
	return fields
}

func (c *Common) logFieldError(e dv.Entry, description string, err error) {
	c.Log().WithFields(logrus.Fields{
		"field":  description,
		"record": e.Key(),
		"offset": e.DataOffset,
	}).WithError(err).Warn("field not decoded")
}
