package tools

import (
	"context"
	"fmt"
	"time"
)

// CurrentTime is the result of the getCurrentTime tool.
type CurrentTime struct {
	Success  bool   `json:"success"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Message  string `json:"message"`
}

// NewCurrentTime returns the getCurrentTime tool reading now.
func NewCurrentTime(now func() time.Time) *Tool {
	return MustFunc("getCurrentTime", "Get the current time",
		func(ctx context.Context, _ struct{}) (any, error) {
			t := now()
			zone, _ := t.Zone()
			if name := t.Location().String(); name != "Local" {
				zone = name
			}
			clock := t.Format(time.Kitchen)
			return CurrentTime{
				Success:  true,
				Time:     clock,
				Timezone: zone,
				Message:  fmt.Sprintf("The current time is %s in %s timezone.", clock, zone),
			}, nil
		})
}

// RegisterBuiltins adds the built-in tools to r.
func RegisterBuiltins(r *Registry) {
	r.Add(NewCurrentTime(time.Now))
}
