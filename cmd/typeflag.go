package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/carelog/internal/models"
	"github.com/spf13/pflag"
)

// eventTypeValue is a pflag.Value restricted to the known event categories.
type eventTypeValue struct {
	typ *models.EventType
}

var _ pflag.Value = (*eventTypeValue)(nil)

func newEventTypeValue(def models.EventType, p *models.EventType) *eventTypeValue {
	*p = def
	return &eventTypeValue{typ: p}
}

func (v *eventTypeValue) String() string {
	if v.typ == nil {
		return ""
	}
	return string(*v.typ)
}

func (v *eventTypeValue) Set(s string) error {
	t := models.EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return fmt.Errorf("must be one of %s", eventTypeNames())
	}
	*v.typ = t
	return nil
}

func (v *eventTypeValue) Type() string {
	return "type"
}

func eventTypeNames() string {
	names := make([]string, len(models.EventTypes))
	for i, t := range models.EventTypes {
		names[i] = string(t)
	}
	return strings.Join(names, "|")
}

// addEventTypeFlag registers a validated --type/-t on fs that writes to p.
func addEventTypeFlag(fs *pflag.FlagSet, def models.EventType, p *models.EventType) {
	fs.VarP(newEventTypeValue(def, p), "type", "t", "event type ("+eventTypeNames()+")")
}
